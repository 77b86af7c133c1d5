// Package encoder writes dead letters to analytics file formats.
//
// # Supported Formats
//
//   - Parquet: columnar, one row per archived batch
//   - Avro: OCF container with embedded schema
//
// Use Factory when the format comes from configuration:
//
//	factory := encoder.NewFactory(event.FormatParquet, "snappy")
//	enc, err := factory.CreateEncoder()
//	if err != nil {
//	    return err
//	}
//	stats, err := enc.Encode(path, letters)
//
// # Compression Options
//
//	Parquet: "snappy" (default), "gzip", "lz4", "zstd", "uncompressed"
//	Avro:    "gzip" (default), "uncompressed"
//
// Both schemas carry the category, source file name, raw batch payload,
// failure reason, attempt count and archive time.
package encoder
