// Package config builds the single Config value every component is constructed from.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/rhyzero/file-organizer/internal/gcp"
)

// Backend names.
const (
	RemoteDrive = "drive"
	RemoteGCS   = "gcs"

	RecordsSQLite    = "sqlite"
	RecordsFirestore = "firestore"

	ClassifierHTTP   = "http"
	ClassifierVertex = "vertex"

	AuthFirebase = "firebase"
	AuthHMAC     = "hmac"
)

// Config holds all configuration for the organizer services.
type Config struct {
	ProjectID string `yaml:"project_id"`

	RemoteBackend        string `yaml:"remote_backend"`
	DriveRootFolderID    string `yaml:"drive_root_folder_id"`
	DriveCredentialsFile string `yaml:"drive_credentials_file"`
	IntakeBucket         string `yaml:"intake_bucket"`

	RecordBackend       string `yaml:"record_backend"`
	SQLitePath          string `yaml:"sqlite_path"`
	FirestoreCollection string `yaml:"firestore_collection"`
	FirestoreDatabase   string `yaml:"firestore_database"`

	ClassifierBackend string `yaml:"classifier_backend"`
	ClassifierURL     string `yaml:"classifier_url"`
	VertexAIRegion    string `yaml:"vertex_ai_region"`

	AuthMode          string `yaml:"auth_mode"`
	FirebaseProjectID string `yaml:"firebase_project_id"`
	AuthHMACSecret    string `yaml:"auth_hmac_secret"`

	TaxonomyFile string `yaml:"taxonomy_file"`

	WorkflowID       string `yaml:"workflow_id"`
	WorkflowLocation string `yaml:"workflow_location"`

	Port           string `yaml:"port"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// Load reads the optional YAML file named by ORGANIZER_CONFIG, applies environment
// overrides and validates the result.
func Load() (*Config, error) {
	cfg := defaults()
	if path := gcp.GetEnv("ORGANIZER_CONFIG", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		RemoteBackend:       RemoteDrive,
		RecordBackend:       RecordsSQLite,
		SQLitePath:          "organizer.db",
		FirestoreCollection: "document_extractions",
		ClassifierBackend:   ClassifierHTTP,
		ClassifierURL:       "http://localhost:5000/classify",
		VertexAIRegion:      "us-central1",
		AuthMode:            AuthFirebase,
		WorkflowLocation:    "us-central1",
		Port:                "8080",
		MaxUploadBytes:      50 * 1024 * 1024,
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ProjectID = gcp.GetEnv("PROJECT_ID", c.ProjectID)
	c.RemoteBackend = gcp.GetEnv("REMOTE_BACKEND", c.RemoteBackend)
	c.DriveRootFolderID = gcp.GetEnv("DRIVE_ROOT_FOLDER_ID", c.DriveRootFolderID)
	c.DriveCredentialsFile = gcp.GetEnv("DRIVE_CREDENTIALS_FILE", c.DriveCredentialsFile)
	c.IntakeBucket = gcp.GetEnv("INTAKE_BUCKET", c.IntakeBucket)
	c.RecordBackend = gcp.GetEnv("RECORD_BACKEND", c.RecordBackend)
	c.SQLitePath = gcp.GetEnv("SQLITE_PATH", c.SQLitePath)
	c.FirestoreCollection = gcp.GetEnv("FIRESTORE_COLLECTION", c.FirestoreCollection)
	c.FirestoreDatabase = gcp.GetEnv("FIRESTORE_DATABASE", c.FirestoreDatabase)
	c.ClassifierBackend = gcp.GetEnv("CLASSIFIER_BACKEND", c.ClassifierBackend)
	c.ClassifierURL = gcp.GetEnv("CLASSIFIER_URL", c.ClassifierURL)
	c.VertexAIRegion = gcp.GetEnv("VERTEX_AI_REGION", c.VertexAIRegion)
	c.AuthMode = gcp.GetEnv("AUTH_MODE", c.AuthMode)
	c.FirebaseProjectID = gcp.GetEnv("FIREBASE_PROJECT_ID", c.FirebaseProjectID)
	c.AuthHMACSecret = gcp.GetEnv("AUTH_HMAC_SECRET", c.AuthHMACSecret)
	c.TaxonomyFile = gcp.GetEnv("TAXONOMY_FILE", c.TaxonomyFile)
	c.WorkflowID = gcp.GetEnv("WORKFLOW_ID", c.WorkflowID)
	c.WorkflowLocation = gcp.GetEnv("WORKFLOW_LOCATION", c.WorkflowLocation)
	c.Port = gcp.GetEnv("PORT", c.Port)
	if v := gcp.GetEnv("MAX_UPLOAD_BYTES", ""); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.MaxUploadBytes = n
		}
	}
	if c.FirebaseProjectID == "" {
		c.FirebaseProjectID = c.ProjectID
	}
}

// Validate checks that every backend selected has the settings it needs.
func (c *Config) Validate() error {
	switch c.RemoteBackend {
	case RemoteDrive:
		if c.DriveRootFolderID == "" {
			return fmt.Errorf("DRIVE_ROOT_FOLDER_ID must be set for the drive backend")
		}
	case RemoteGCS:
		if c.IntakeBucket == "" {
			return fmt.Errorf("INTAKE_BUCKET must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown REMOTE_BACKEND %q", c.RemoteBackend)
	}

	switch c.RecordBackend {
	case RecordsSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH must be set for the sqlite backend")
		}
	case RecordsFirestore:
		if c.ProjectID == "" {
			return fmt.Errorf("PROJECT_ID must be set for the firestore backend")
		}
	default:
		return fmt.Errorf("unknown RECORD_BACKEND %q", c.RecordBackend)
	}

	switch c.ClassifierBackend {
	case ClassifierHTTP:
		if c.ClassifierURL == "" {
			return fmt.Errorf("CLASSIFIER_URL must be set for the http classifier")
		}
	case ClassifierVertex:
		if c.ProjectID == "" {
			return fmt.Errorf("PROJECT_ID must be set for the vertex classifier")
		}
	default:
		return fmt.Errorf("unknown CLASSIFIER_BACKEND %q", c.ClassifierBackend)
	}

	switch c.AuthMode {
	case AuthFirebase:
		if c.FirebaseProjectID == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID or PROJECT_ID must be set for firebase auth")
		}
	case AuthHMAC:
		if len(c.AuthHMACSecret) < 32 {
			return fmt.Errorf("AUTH_HMAC_SECRET must be at least 32 bytes")
		}
	default:
		return fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode)
	}

	if c.WorkflowID != "" && c.ProjectID == "" {
		return fmt.Errorf("PROJECT_ID must be set when WORKFLOW_ID is configured")
	}
	return nil
}
