// Package packaging builds redistributable credential archives.
//
// One pipeline run stages a single copy of the skeleton directory, mutates
// it with the profile's transform scripts, then fans the result out into an
// isolated per-user directory for every requested user, injects that user's
// certificate and key, and serializes the tree into a zip archive. The run
// is all-or-nothing at the batch level: any precondition failure rejects
// the whole batch before a single byte is written.
package packaging
