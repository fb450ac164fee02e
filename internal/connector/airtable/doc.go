// Package airtable implements the Airtable destination.
//
// Records are written ten at a time. Insert POSTs every chunk. Upsert and
// update match records against the destination by a unique field, using a
// run-scoped index built from one full scan of the table; matching on the
// native record id skips the scan. Upsert merges the ids of records it
// creates into the index under the run lock so later chunks update them.
//
// The package also registers a custom mapping handler that resolves
// linked-record fields (options linked_table and linked_field).
package airtable
