package config

// Default paths for databases
const (
	// DefaultDatabasePath is the default path for the local catalog cache
	DefaultDatabasePath = "./bibliotheek.db"

	// DefaultRemoteURL is where the store of record listens in a development setup
	DefaultRemoteURL = "http://localhost:5000"
)
