// Package fleet holds the domain vocabulary shared by every part of the
// wallet fleet: accounts borrowed from the key store, per-operation results,
// batch summaries and the error taxonomy batch operations report.
package fleet
