package reconcile

import "github.com/gridlake-io/gridlake/internal/sanitize"

// TableName is the query-service name of a logical table, scoped by client
// and model.
func TableName(clientID, modelID, table string) string {
	return sanitize.Name(clientID + "_" + modelID + "_" + table)
}

// ViewName is the name of the view joining every table of a model.
func ViewName(clientID, modelID string) string {
	return sanitize.Name(clientID + "_" + modelID + "_view")
}
