/*
The sync package implements ftpsync's sync algorithm. It mirrors a local
directory (the local root) onto a directory on the SFTP server (the remote
base path).

Syncing happens in two phases:
 1. The initial sync compares the full local and remote trees, and deletes,
    creates, or uploads whatever is needed to make the remote match. Files
    that exist on both sides are only uploaded if the local copy is newer.
 2. Afterwards, local changes are recorded in a Ledger as they happen, and
    each sync pass applies the pending changes. Deletions happen first, then
    directory creations, then uploads, so that a file is never uploaded into a
    directory that doesn't exist yet.

Paths within the trees and the ledger are RelPaths: forward-slash separated
paths relative to the root, regardless of the local OS.
*/
package sync
