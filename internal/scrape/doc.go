// Package scrape defines the core types, collaborator interfaces and error
// kinds shared by the executors, the dispatch backends and the HTTP API.
package scrape
