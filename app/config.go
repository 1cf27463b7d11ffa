package app

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/moontrade/backbone/config"
	"github.com/moontrade/backbone/coordinator"
)

func versline(conf Config) string {
	sha := ""
	if conf.GitSHA != "" {
		sha = " (" + conf.GitSHA + ")"
	}
	return fmt.Sprintf("%s version %s%s", conf.Name, conf.Version, sha)
}

const usage = `{{NAME}} version: {{VERSION}} ({{GITSHA}})

Usage: {{NAME}} [-c path] [-a addr] [options]

Basic options:
  -v               : display version
  -h               : display help, this screen
  -c path          : configuration file, yaml/toml/json  (default: none)
  -a addr          : redis address  (default: 127.0.0.1:6379)
  -l level         : log level  (default: info) [trace,debug,info,warn,silent]

Redis options:
  --driver name    : client library  (default: redigo) [redigo,goredis]
  --auth auth      : redis password
  --tls-cert path  : path to TLS certificate
  --tls-key path   : path to TLS private key

Consumer options:
  -g group         : consumer group  (default: backbone)
  -n name          : consumer name, keep it stable across restarts
                     (default: generated)

Every configuration key can also be set in the environment, with the
BACKBONE_ prefix and dots replaced by underscores, e.g. BACKBONE_REDIS_ADDR.
{{USAGE}}`

// Config is the configuration for managing the behavior of the application.
// This must be filled out prior and then passed to the app.Main() function.
type Config struct {
	// Name gives the application a name. Default "backbone"
	Name string

	// Version of the application. Default "0.0.0"
	Version string

	// GitSHA of the application.
	GitSHA string

	// Flag is used to manage the application startup flags.
	Flag struct {
		// Custom tells Main to not automatically parse the application startup
		// flags. When set it is up to the user to fill out Settings or
		// ConfigPath.
		Custom bool
		// Usage is an optional function that allows for altering the usage
		// message.
		Usage func(usage string) string
		// PreParse is an optional function that allows for adding command line
		// flags before the user flags are parsed.
		PreParse func()
		// PostParse is an optional function that fires after user flags are
		// parsed.
		PostParse func()
	}

	// Executor acts on opportunities. Default logs them.
	Executor coordinator.Executor

	// Settings skips loading ConfigPath when set.
	Settings *config.Config

	ConfigPath  string    // default ""
	Addr        string    // default from settings
	Driver      string    // default from settings
	Group       string    // default from settings
	Consumer    string    // default from settings
	LogOutput   io.Writer // default os.Stderr
	LogLevel    string    // default from settings
	TLSCertPath string    // default ""
	TLSKeyPath  string    // default ""
	Auth        string    // default ""
}

func (conf *Config) def() {
	if conf.Version == "" {
		conf.Version = "0.0.0"
	}
	if conf.Name == "" {
		conf.Name = "backbone"
	}
	if conf.LogOutput == nil {
		conf.LogOutput = os.Stderr
	}
}

func confInit(conf *Config) {
	conf.def()
	if conf.Flag.Custom {
		return
	}
	flag.Usage = func() {
		w := os.Stderr
		for _, arg := range os.Args {
			if arg == "-h" || arg == "--help" {
				w = os.Stdout
				break
			}
		}
		s := usage
		s = strings.Replace(s, "{{VERSION}}", conf.Version, -1)
		if conf.GitSHA == "" {
			s = strings.Replace(s, " ({{GITSHA}})", "", -1)
			s = strings.Replace(s, "{{GITSHA}}", "", -1)
		} else {
			s = strings.Replace(s, "{{GITSHA}}", conf.GitSHA, -1)
		}
		s = strings.Replace(s, "{{NAME}}", conf.Name, -1)
		if conf.Flag.Usage != nil {
			s = conf.Flag.Usage(s)
		}
		s = strings.Replace(s, "{{USAGE}}", "", -1)
		w.Write([]byte(s))
		if w == os.Stdout {
			os.Exit(0)
		}
	}
	var vers bool
	flag.BoolVar(&vers, "v", false, "")
	flag.StringVar(&conf.ConfigPath, "c", conf.ConfigPath, "")
	flag.StringVar(&conf.Addr, "a", conf.Addr, "")
	flag.StringVar(&conf.LogLevel, "l", conf.LogLevel, "")
	flag.StringVar(&conf.Driver, "driver", conf.Driver, "")
	flag.StringVar(&conf.Group, "g", conf.Group, "")
	flag.StringVar(&conf.Consumer, "n", conf.Consumer, "")
	flag.StringVar(&conf.TLSCertPath, "tls-cert", conf.TLSCertPath, "")
	flag.StringVar(&conf.TLSKeyPath, "tls-key", conf.TLSKeyPath, "")
	flag.StringVar(&conf.Auth, "auth", conf.Auth, "")
	if conf.Flag.PreParse != nil {
		conf.Flag.PreParse()
	}
	flag.Parse()
	if vers {
		fmt.Printf("%s\n", versline(*conf))
		os.Exit(0)
	}
	if conf.TLSCertPath != "" && conf.TLSKeyPath == "" {
		fmt.Fprintf(os.Stderr,
			"flag --tls-key cannot be empty when --tls-cert is provided\n")
		os.Exit(1)
	} else if conf.TLSCertPath == "" && conf.TLSKeyPath != "" {
		fmt.Fprintf(os.Stderr,
			"flag --tls-cert cannot be empty when --tls-key is provided\n")
		os.Exit(1)
	}
	if conf.Flag.PostParse != nil {
		conf.Flag.PostParse()
	}
}

// settingsInit loads the settings and overlays the flags that were set.
func settingsInit(conf Config) (config.Config, error) {
	var s config.Config
	if conf.Settings != nil {
		s = *conf.Settings
	} else {
		var err error
		if s, err = config.Load(conf.ConfigPath); err != nil {
			return s, fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}
	overlay(&s.Redis.Addr, conf.Addr)
	overlay(&s.Redis.Driver, conf.Driver)
	overlay(&s.Redis.Auth, conf.Auth)
	overlay(&s.Redis.TLSCert, conf.TLSCertPath)
	overlay(&s.Redis.TLSKey, conf.TLSKeyPath)
	overlay(&s.Consumer.Group, conf.Group)
	overlay(&s.Consumer.Name, conf.Consumer)
	overlay(&s.Log.Level, conf.LogLevel)
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return s, nil
}

func overlay(dst *string, flagValue string) {
	if flagValue != "" {
		*dst = flagValue
	}
}
