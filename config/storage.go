package config

// StorageConfig contains object storage (S3-compatible) configuration.
type StorageConfig struct {
	Endpoint  string `env:"ENDPOINT"   envDefault:"localhost:9000"`
	AccessKey string `env:"ACCESS_KEY" envDefault:"invoiceinbox"`
	SecretKey string `env:"SECRET_KEY" envDefault:"invoiceinbox"`
	Bucket    string `env:"BUCKET"     envDefault:"invoice-inbox"`
	UseSSL    bool   `env:"USE_SSL"    envDefault:"false"`
}

// OCRConfig contains scanned-document OCR configuration. When disabled,
// image attachments and scanned PDFs fail extraction instead of being OCRed.
type OCRConfig struct {
	Enabled   bool   `env:"ENABLED"   envDefault:"false"`
	Binary    string `env:"BINARY"    envDefault:"tesseract"`
	Languages string `env:"LANGUAGES" envDefault:"eng"`
}
