package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tgdrive/botmanager/internal/duration"
)

const envPrefix = "BOTMANAGER_"

type ServerConfig struct {
	Port             int           `koanf:"port" default:"8080" validate:"min=1,max=65535" help:"Server port"`
	GracefulShutdown time.Duration `koanf:"graceful-shutdown" default:"10s" help:"Time to wait for in-flight requests and workers on shutdown"`
	ReadTimeout      time.Duration `koanf:"read-timeout" default:"1h" help:"HTTP read timeout"`
	WriteTimeout     time.Duration `koanf:"write-timeout" default:"1h" help:"HTTP write timeout"`
}

type LoggingConfig struct {
	Level string `koanf:"level" default:"info" validate:"oneof=debug info warn error dpanic panic fatal" help:"Logging level"`
	File  string `koanf:"file" help:"Logging file path"`
}

type DBConfig struct {
	Driver     string `koanf:"driver" default:"sqlite" validate:"oneof=sqlite postgres memory" help:"Record store backend (sqlite, postgres, memory)"`
	DataSource string `koanf:"data-source" default:"botmanager.db" validate:"required_unless=Driver memory" help:"Database connection string or sqlite file path"`
	Migrate    bool   `koanf:"migrate" default:"true" help:"Apply pending migrations on start"`
	LogLevel   string `koanf:"log-level" default:"error" validate:"oneof=debug info warn error none" help:"Database query log level"`
	Pool       struct {
		MaxOpenConnections int           `koanf:"max-open-connections" default:"25" validate:"min=1" help:"Database max open connections"`
		MaxIdleConnections int           `koanf:"max-idle-connections" default:"5" help:"Database max idle connections"`
		MaxLifetime        time.Duration `koanf:"max-lifetime" default:"10m" help:"Database max connection lifetime"`
	} `koanf:"pool"`
}

type CacheConfig struct {
	MaxSize   int           `koanf:"max-size" default:"10485760" help:"Max in-process cache size in bytes"`
	RedisAddr string        `koanf:"redis-addr" help:"Redis address; in-process cache is used when empty"`
	RedisPass string        `koanf:"redis-pass" help:"Redis password"`
	TTL       time.Duration `koanf:"ttl" default:"1m" help:"Bot record cache lifetime; 0 disables the cache"`
}

type SupervisorConfig struct {
	GracePeriod time.Duration `koanf:"grace-period" default:"5s" help:"Time a worker gets to exit after SIGTERM before SIGKILL"`
	KillTimeout time.Duration `koanf:"kill-timeout" default:"2s" help:"Time to wait for a worker to exit after SIGKILL"`
	LogsDir     string        `koanf:"logs-dir" default:"logs" validate:"required" help:"Directory for per-bot worker log files"`
	JournalFile string        `koanf:"journal-file" help:"PID journal file (default $HOME/.botmanager/journal.db)"`
}

type WorkerConfig struct {
	Command string   `koanf:"command" help:"Worker executable (default: this binary)"`
	Args    []string `koanf:"args" default:"worker" help:"Worker arguments"`
}

type AuthConfig struct {
	AdminSecret string        `koanf:"admin-secret" help:"Admin password or bcrypt hash; enables API authentication"`
	JWTSecret   string        `koanf:"jwt-secret" validate:"required_with=AdminSecret" help:"Secret used to sign session tokens"`
	SessionTime time.Duration `koanf:"session-time" default:"30d" help:"Session token lifetime"`
	LoginRate   float64       `koanf:"login-rate" default:"1" help:"Login attempts allowed per second"`
	LoginBurst  int           `koanf:"login-burst" default:"5" help:"Login attempt burst"`
}

type RegistrarConfig struct {
	Command string        `koanf:"command" help:"Command run to register a chat account when a user is created"`
	Args    []string      `koanf:"args" help:"Registrar arguments; {{username}}, {{password}} and {{admin}} are substituted"`
	Timeout time.Duration `koanf:"timeout" default:"30s" help:"Registrar command timeout"`
}

type CronJobConfig struct {
	Enable            bool          `koanf:"enable" default:"true" help:"Run scheduled jobs"`
	CleanLogsInterval time.Duration `koanf:"clean-logs-interval" default:"1h" help:"Interval of the log cleanup job"`
	LogRetention      time.Duration `koanf:"log-retention" default:"7d" help:"Age after which worker logs are removed"`
}

type ChatConfig struct {
	SyncTimeout     time.Duration `koanf:"sync-timeout" default:"30s" help:"Long-poll timeout of the homeserver sync call"`
	UpstreamTimeout time.Duration `koanf:"upstream-timeout" default:"30s" help:"Timeout of a single chatflow request"`
	RetryMax        time.Duration `koanf:"retry-max" default:"1m" help:"Max backoff between failed sync attempts"`
}

type ServerCmdConfig struct {
	Server     ServerConfig     `koanf:"server"`
	Log        LoggingConfig    `koanf:"log"`
	DB         DBConfig         `koanf:"db"`
	Cache      CacheConfig      `koanf:"cache"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Worker     WorkerConfig     `koanf:"worker"`
	Auth       AuthConfig       `koanf:"auth"`
	Registrar  RegistrarConfig  `koanf:"registrar"`
	CronJobs   CronJobConfig    `koanf:"cronjobs"`
}

type MigrateCmdConfig struct {
	DB  DBConfig      `koanf:"db"`
	Log LoggingConfig `koanf:"log"`
}

type WorkerCmdConfig struct {
	Log  LoggingConfig `koanf:"log"`
	Chat ChatConfig    `koanf:"chat"`
}

type ConfigLoader struct {
	k        *koanf.Koanf
	validate *validator.Validate
	cfg      interface{}
	defaults map[string]string
	flagKeys map[string]string
	envKeys  map[string]string
}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{
		k:        koanf.New("."),
		validate: validator.New(),
		defaults: make(map[string]string),
		flagKeys: make(map[string]string),
		envKeys:  make(map[string]string),
	}
}

func StringToDurationHook() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}

		if t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		str, ok := data.(string)
		if !ok {
			return data, nil
		}
		return duration.Parse(str)
	}
}

// RegisterFlags walks cfg and adds one flag per leaf field, named after the
// koanf key path joined with "-" (server.port -> server-port).
func (cl *ConfigLoader) RegisterFlags(flags *pflag.FlagSet, prefix string, cfg interface{}, skipConfig bool) error {
	if !skipConfig && flags.Lookup("config") == nil {
		flags.StringP("config", "c", "", "Config file path (default $HOME/.botmanager/config.toml)")
	}
	t := reflect.TypeOf(cfg)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return errors.Errorf("config: expected struct, got %s", t.Kind())
	}
	return cl.registerStruct(flags, t, prefix)
}

func (cl *ConfigLoader) registerStruct(flags *pflag.FlagSet, t reflect.Type, prefix string) error {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("koanf")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Duration(0)) {
			if err := cl.registerStruct(flags, field.Type, key); err != nil {
				return err
			}
			continue
		}

		name := strings.ReplaceAll(key, ".", "-")
		def := field.Tag.Get("default")
		help := field.Tag.Get("help")

		cl.flagKeys[name] = key
		cl.envKeys[envPrefix+strings.ToUpper(strings.ReplaceAll(name, "-", "_"))] = key
		if def != "" {
			cl.defaults[key] = def
		}

		if flags.Lookup(name) != nil {
			continue
		}
		if err := addFlag(flags, field.Type, name, def, help); err != nil {
			return errors.Wrapf(err, "flag %s", name)
		}
	}
	return nil
}

func addFlag(flags *pflag.FlagSet, t reflect.Type, name, def, help string) error {
	if t == reflect.TypeOf(time.Duration(0)) {
		var d time.Duration
		if def != "" {
			v, err := duration.Parse(def)
			if err != nil {
				return err
			}
			d = v
		}
		duration.Var(flags, new(time.Duration), name, d, help)
		return nil
	}

	switch t.Kind() {
	case reflect.String:
		flags.String(name, def, help)
	case reflect.Bool:
		v, _ := strconv.ParseBool(def)
		flags.Bool(name, v, help)
	case reflect.Int:
		v, _ := strconv.Atoi(def)
		flags.Int(name, v, help)
	case reflect.Int64:
		v, _ := strconv.ParseInt(def, 10, 64)
		flags.Int64(name, v, help)
	case reflect.Float64:
		v, _ := strconv.ParseFloat(def, 64)
		flags.Float64(name, v, help)
	case reflect.Slice:
		if t.Elem().Kind() != reflect.String {
			return errors.Errorf("unsupported slice type %s", t)
		}
		var v []string
		if def != "" {
			v = strings.Split(def, ",")
		}
		flags.StringSlice(name, v, help)
	default:
		return errors.Errorf("unsupported type %s", t)
	}
	return nil
}

// Load merges, in increasing precedence, struct defaults, the config file,
// BOTMANAGER_* environment variables and explicitly set flags into cfg.
func (cl *ConfigLoader) Load(cmd *cobra.Command, cfg interface{}) error {
	if len(cl.flagKeys) == 0 {
		if err := cl.RegisterFlags(cmd.Flags(), "", cfg, false); err != nil {
			return err
		}
	}

	for key, def := range cl.defaults {
		if err := cl.k.Set(key, def); err != nil {
			return errors.Wrapf(err, "default %s", key)
		}
	}

	if err := cl.loadFile(cmd); err != nil {
		return err
	}

	if err := cl.k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return cl.envKeys[s]
	}), nil); err != nil {
		return errors.Wrap(err, "load env")
	}

	var flagErr error
	cmd.Flags().Visit(func(f *pflag.Flag) {
		key, ok := cl.flagKeys[f.Name]
		if !ok || flagErr != nil {
			return
		}
		var val interface{} = f.Value.String()
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			val = sv.GetSlice()
		}
		flagErr = cl.k.Set(key, val)
	})
	if flagErr != nil {
		return errors.Wrap(flagErr, "load flags")
	}

	if err := cl.k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				StringToDurationHook(),
				mapstructure.StringToSliceHookFunc(","),
			),
			WeaklyTypedInput: true,
			TagName:          "koanf",
			Result:           cfg,
		},
	}); err != nil {
		return errors.Wrap(err, "decode config")
	}
	cl.cfg = cfg
	return nil
}

func (cl *ConfigLoader) loadFile(cmd *cobra.Command) error {
	var path string
	if f := cmd.Flags().Lookup("config"); f != nil {
		path = f.Value.String()
	}
	explicit := path != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, ".botmanager", "config.toml")
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return errors.Wrap(err, "config file")
	}

	var parser koanf.Parser = toml.Parser()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	}
	if err := cl.k.Load(file.Provider(path), parser); err != nil {
		return errors.Wrapf(err, "read config file %s", path)
	}
	return nil
}

// Validate checks the last loaded config against its validate tags.
func (cl *ConfigLoader) Validate() error {
	if cl.cfg == nil {
		return errors.New("config not loaded")
	}
	err := cl.validate.Struct(cl.cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	var missing, invalid []string
	for _, fe := range verrs {
		name := fe.Namespace()
		if strings.HasPrefix(fe.Tag(), "required") {
			missing = append(missing, name)
		} else {
			invalid = append(invalid, name+" ("+fe.Tag()+")")
		}
	}
	if len(missing) > 0 {
		return errors.Errorf("required configuration values not set: %s", strings.Join(missing, ", "))
	}
	return errors.Errorf("invalid configuration values: %s", strings.Join(invalid, ", "))
}
