package config

import (
	"os"
	"strconv"
	"time"

	"github.com/Chanzhaoyu/nest-blog-api/internal/timex"
	"github.com/joho/godotenv"
)

// parseEnv overlays values from a .env file and the process environment.
// Non-empty environment variables win over the file. With an empty path the
// default ".env" is read if present; an explicit path that cannot be read
// panics.
func parseEnv(config *Config, path string) {
	fileVals, err := readDotEnv(path)
	if err != nil {
		panic(err)
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := fileVals[key]
		return v, ok
	}

	envString(lookup, "HTTP_ADDR", &config.EndpointAddrHTTP)
	if port, ok := lookup("PORT"); ok && port != "" {
		config.EndpointAddrHTTP = ":" + port
	}
	envString(lookup, "GRPC_ADDR", &config.EndpointAddrGRPC)
	envString(lookup, "DATABASE_URL", &config.DatabaseDSN)
	envString(lookup, "CLIENT_URL", &config.ClientURL)
	envBool(lookup, "TRUST_PROXY", &config.TrustProxy)
	envString(lookup, "JWT_SECRET", &config.SecretKey)
	envDuration(lookup, "JWT_EXPIRES_IN", &config.AccessTokenValidityDuration)
	envDuration(lookup, "JWT_REFRESH_EXPIRES_IN", &config.RefreshTokenValidityDuration)
	envDuration(lookup, "ONE_TIME_TOKEN_EXPIRES_IN", &config.OneTimeTokenValidityDuration)
	envString(lookup, "MAIL_HOST", &config.MailHost)
	envInt(lookup, "MAIL_PORT", &config.MailPort)
	envString(lookup, "MAIL_USER", &config.MailUser)
	envString(lookup, "MAIL_PASSWORD", &config.MailPassword)
	envString(lookup, "MAIL_FROM", &config.MailFrom)
	envString(lookup, "GOOGLE_CLIENT_ID", &config.GoogleClientID)
	envString(lookup, "GOOGLE_CLIENT_SECRET", &config.GoogleClientSecret)
	envString(lookup, "GOOGLE_CALLBACK_URL", &config.GoogleCallbackURL)
	envString(lookup, "REDIS_ADDR", &config.RedisAddr)
	envString(lookup, "REDIS_PASSWORD", &config.RedisPassword)
	envInt(lookup, "REDIS_DB", &config.RedisDB)
	envString(lookup, "S3_ROOT_USER", &config.S3RootUser)
	envString(lookup, "S3_ROOT_PASSWORD", &config.S3RootPassword)
	envString(lookup, "S3_BUCKET", &config.S3Bucket)
	envString(lookup, "S3_REGION", &config.S3Region)
	envString(lookup, "S3_BASE_ENDPOINT", &config.S3BaseEndpoint)
	envString(lookup, "LOG_LEVEL", &config.LogLevel)
	envString(lookup, "LOG_FORMAT", &config.LogFormat)
}

func readDotEnv(path string) (map[string]string, error) {
	if path != "" {
		return godotenv.Read(path)
	}
	if _, err := os.Stat(".env"); err != nil {
		return map[string]string{}, nil
	}
	return godotenv.Read()
}

type lookupFunc func(key string) (string, bool)

func envString(lookup lookupFunc, key string, dst *string) {
	if v, ok := lookup(key); ok && v != "" {
		*dst = v
	}
}

func envInt(lookup lookupFunc, key string, dst *int) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		panic("config: " + key + " must be an integer")
	}
	*dst = n
}

func envBool(lookup lookupFunc, key string, dst *bool) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		panic("config: " + key + " must be a boolean")
	}
	*dst = b
}

func envDuration(lookup lookupFunc, key string, dst *time.Duration) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return
	}
	d, err := timex.ParseDuration(v)
	if err != nil {
		panic("config: " + key + ": " + err.Error())
	}
	*dst = d
}
