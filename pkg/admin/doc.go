// Package admin provides the HTTP admin API of a groupsocket server.
//
// Routes:
//
//	GET  /health                         liveness
//	GET  /metrics                        Prometheus text exposition
//	GET  /api/stats                      registry statistics
//	GET  /api/groups                     groups with member counts
//	GET  /api/groups/{group}             members of one group
//	POST /api/groups/{group}/messages    broadcast the JSON body to a group
//
// Group names containing "/" must be percent-encoded in the path. The
// adminclient package is a Go client for these routes.
package admin
