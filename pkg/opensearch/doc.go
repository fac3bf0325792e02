// Package opensearch creates the client for the isolation violation index
// and makes sure the index exists with its mapping.
package opensearch
