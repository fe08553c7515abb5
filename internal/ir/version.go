package ir

// Version constants for the DIR schema, the bundle format and the engine.
const (
	// DIRVersion is the DIR program schema version.
	DIRVersion = "1"

	// BundleFormat is the semantic version of the persisted run bundle layout.
	// Replay accepts any bundle whose major version matches.
	BundleFormat = "1.0.0"

	// EngineVersion is the dustrun engine version.
	EngineVersion = "0.1.0"
)
