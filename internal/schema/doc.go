// Package schema builds the declarative definitions of search resources.
//
// Nothing here touches the network. The types serialize to the REST bodies
// accepted by the search service's management endpoints (indexes, datasources,
// skillsets, indexers).
package schema
