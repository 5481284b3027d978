package config

const (
	// EnvPrefix is applied to every environment variable the service reads.
	EnvPrefix = "storehaus"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "STOREHAUS_DB_DSN"
	EnvDBHost = "STOREHAUS_DB_HOST"
	EnvDBUser = "STOREHAUS_DB_USER"
	EnvDBName = "STOREHAUS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
