package config

import (
	"strings"

	"github.com/spf13/viper"
)

type TierflowConfiguration struct {
	LoaderConfig string `json:"loader_config" mapstructure:"loader_config" default:""`
	FileDBConfig string `json:"filedb_config" mapstructure:"filedb_config" default:""`
	FileDBPath   string `json:"filedb_path" mapstructure:"filedb_path" default:""`
	DataDir      string `json:"data_dir" mapstructure:"data_dir" default:""`
	Workers      int    `json:"workers" mapstructure:"workers" default:"1"`
}

type ServerConfiguration struct {
	Host string `json:"host" mapstructure:"host" default:"0.0.0.0"`
	Port string `json:"port" mapstructure:"port" default:"8123"`
}

type LogConfiguration struct {
	Level  string `json:"level" mapstructure:"level" default:"info"`
	Format string `json:"format" mapstructure:"format" default:"text"`
}

type S3Configuration struct {
	URL    string `json:"url" mapstructure:"url" default:""`
	Key    string `json:"key" mapstructure:"key" default:""`
	Secret string `json:"secret" mapstructure:"secret" default:""`
	Bucket string `json:"bucket" mapstructure:"bucket" default:""`
	Region string `json:"region" mapstructure:"region" default:""`
	Path   string `json:"path" mapstructure:"path" default:""`
	Secure bool   `json:"secure" mapstructure:"secure" default:"false"`
}

type Configuration struct {
	Tierflow TierflowConfiguration `json:"tierflow" mapstructure:"tierflow" default:""`
	Server   ServerConfiguration   `json:"server" mapstructure:"server" default:""`
	Log      LogConfiguration      `json:"log" mapstructure:"log" default:""`
	S3       S3Configuration       `json:"s3" mapstructure:"s3" default:""`
}

var Config *Configuration

func InitConfig(file string) {
	conf, err := ReadConfiguration(file)
	if err != nil {
		panic(err)
	}
	Config = conf
}

// ReadConfiguration reads the service configuration. An empty file name uses
// the defaults and the environment only.
func ReadConfiguration(file string) (*Configuration, error) {
	v := viper.New()
	v.SetDefault("tierflow.workers", 1)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8123")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("s3.secure", false)
	// environment overrides only apply to keys viper knows about
	for _, key := range []string{
		"tierflow.loader_config", "tierflow.filedb_config", "tierflow.filedb_path", "tierflow.data_dir",
		"s3.url", "s3.key", "s3.secret", "s3.bucket", "s3.region", "s3.path",
	} {
		v.SetDefault(key, "")
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	conf := &Configuration{}
	if err := v.Unmarshal(conf); err != nil {
		return nil, err
	}
	if conf.Tierflow.Workers < 1 {
		conf.Tierflow.Workers = 1
	}
	return conf, nil
}
