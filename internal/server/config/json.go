package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/photodrop/internal/flagx"
	"github.com/dmitrijs2005/photodrop/internal/timex"
)

// JsonConfig is the on-disk form of Config. Durations use timex.Duration,
// which accepts both "90m" strings and integer nanoseconds.
type JsonConfig struct {
	EndpointAddrHTTP        string         `json:"endpoint_addr_http"`
	EndpointAddrHealth      string         `json:"endpoint_addr_health"`
	StoreBackend            string         `json:"store_backend"`
	DatabaseDSN             string         `json:"database_dsn"`
	SecretKey               string         `json:"secret_key"`
	OperatorPasscode        string         `json:"operator_passcode"`
	SessionValidityDuration timex.Duration `json:"session_validity_duration"`
	S3RootUser              string         `json:"s3_root_user"`
	S3RootPassword          string         `json:"s3_root_password"`
	S3Bucket                string         `json:"s3_bucket"`
	S3Region                string         `json:"s3_region"`
	S3BaseEndpoint          string         `json:"s3_base_endpoint"`
	TargetFolderName        string         `json:"target_folder_name"`
	ListPageSize            int            `json:"list_page_size"`
	MaxUploadBytes          int64          `json:"max_upload_bytes"`
	AllowedOrigin           string         `json:"allowed_origin"`
}

// parseJson overlays the JSON file named by -c/-config onto config.
// Keys absent from the file keep their current value. A missing flag
// loads nothing; an unreadable or invalid file panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrHealth, c.EndpointAddrHealth)
	setString(&config.StoreBackend, c.StoreBackend)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.OperatorPasscode, c.OperatorPasscode)
	if c.SessionValidityDuration.Duration > 0 {
		config.SessionValidityDuration = c.SessionValidityDuration.Duration
	}
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.TargetFolderName, c.TargetFolderName)
	if c.ListPageSize > 0 {
		config.ListPageSize = c.ListPageSize
	}
	if c.MaxUploadBytes > 0 {
		config.MaxUploadBytes = c.MaxUploadBytes
	}
	setString(&config.AllowedOrigin, c.AllowedOrigin)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
