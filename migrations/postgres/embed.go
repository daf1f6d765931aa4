// Package migrations embeds SQL migration files.
package migrations

import "embed"

// BlobsFS contiene las migraciones del storage de blobs en PostgreSQL.
//
//go:embed blobs/*.sql
var BlobsFS embed.FS

// BlobsDir es el directorio dentro de BlobsFS donde viven las migraciones.
const BlobsDir = "blobs"
