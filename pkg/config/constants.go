package config

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = "royaltyops"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "ROYALTYOPS_DB_DSN"
	EnvDBHost = "ROYALTYOPS_DB_HOST"
	EnvDBUser = "ROYALTYOPS_DB_USER"
	EnvDBName = "ROYALTYOPS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
