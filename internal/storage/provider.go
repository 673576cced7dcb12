package storage

import "vidhook/internal/ports"

// Provider is the output storage contract used by the processor and the
// output handler. It is an alias to ports.StorageProvider to keep call-sites
// simple.
type Provider = ports.StorageProvider
