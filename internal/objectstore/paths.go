package objectstore

import (
	"path"
	"strings"
)

const (
	rawRoot  = "input"
	dataRoot = "data"

	// ColumnarExtension is the suffix of columnar copies.
	ColumnarExtension = "parquet"
)

func modelPrefix(clientID, modelID string) string {
	return "client/" + clientID + "/" + modelID + "/"
}

// RawKey is where the cleaned verbatim copy of a file is stored:
// client/{clientID}/{modelID}/input/{table}/{file}.
func RawKey(clientID, modelID, table, file string) string {
	return modelPrefix(clientID, modelID) + rawRoot + "/" + table + "/" + file
}

// RawPrefix is the directory holding a table's raw files.
func RawPrefix(clientID, modelID, table string) string {
	return modelPrefix(clientID, modelID) + rawRoot + "/" + table + "/"
}

// DataKey is where the columnar copy of a file is stored. The file's
// extension is replaced by the columnar one:
// client/{clientID}/{modelID}/data/{table}/{fileBase}.parquet.
func DataKey(clientID, modelID, table, file string) string {
	base := path.Base(file)
	if dot := strings.LastIndexByte(base, '.'); dot > 0 {
		base = base[:dot]
	}
	return DataPrefix(clientID, modelID, table) + base + "." + ColumnarExtension
}

// DataPrefix is the directory holding a table's columnar files. It is the
// table's LOCATION in the query service.
func DataPrefix(clientID, modelID, table string) string {
	return modelPrefix(clientID, modelID) + dataRoot + "/" + table + "/"
}

// URI renders a key as an s3:// URI in bucket.
func URI(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}

// NormalizeKey strips an s3://bucket/ prefix to return a bucket-relative key.
// Other paths are returned unchanged.
func NormalizeKey(p string) string {
	if strings.HasPrefix(p, "s3://") {
		parts := strings.SplitN(strings.TrimPrefix(p, "s3://"), "/", 2)
		if len(parts) == 2 {
			return parts[1]
		}
	}
	return p
}
