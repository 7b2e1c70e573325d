package appstore

import "time"

type Config struct {
	SharedSecret     string        `env:"APPSTORE_SHARED_SECRET,required"`
	ProductionURL    string        `env:"APPSTORE_VERIFY_URL" envDefault:"https://buy.itunes.apple.com/verifyReceipt"`
	SandboxURL       string        `env:"APPSTORE_SANDBOX_VERIFY_URL" envDefault:"https://sandbox.itunes.apple.com/verifyReceipt"`
	Timeout          time.Duration `env:"APPSTORE_TIMEOUT" envDefault:"15s"`
	VerifySignatures bool          `env:"APPSTORE_VERIFY_SIGNATURES" envDefault:"false"`
	RootCertPath     string        `env:"APPSTORE_ROOT_CERT_PATH"`
}
