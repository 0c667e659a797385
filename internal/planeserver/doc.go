// Package planeserver serves the control-plane HTTP API consumed by the
// daemon, backed by planestore.
//
// Daemon routes require the shared X-Daemon-Password and an X-Daemon-Id;
// operator routes under /admin require an HS256 bearer token minted with
// controlplane.MintAdminToken. Uploaded artifacts are written below a local
// object directory and served publicly from /storage/objects.
package planeserver
