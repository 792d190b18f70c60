// Package common contains shared constants and sentinel errors used across
// zelebiz components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// IdempotencyKeyHeaderName carries MutationRecord.ID on REST mutation calls.
const IdempotencyKeyHeaderName = "Idempotency-Key"

// Keys of the client-side durable store.
const (
	StorageKeyUserData  = "zelebiz_user"
	StorageKeySettings  = "zelebiz_settings"
	StorageKeySyncQueue = "zelebiz_sync_queue"
	StorageKeyCache     = "zelebiz_cache/"
)

// ArchiveContentType is the content type of archived queue records
// (snappy-framed JSON lines). Presigned upload URLs are signed for it.
const ArchiveContentType = "application/x-snappy-framed"
