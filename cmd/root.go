package cmd

import (
	"fmt"
	u "net/url"
	"os"
	"time"

	"github.com/k1rakishou/chanfetch/internal/config"
	"github.com/k1rakishou/chanfetch/internal/output"
	"github.com/k1rakishou/chanfetch/internal/utils"
	"github.com/spf13/cobra"
)

var (
	configPath     string
	debug          bool
	logFile        string
	outputDir      string
	connections    int
	maxConcurrency int
	bandwidthLimit config.ByteSize
	stallTimeout   time.Duration
	timeout        time.Duration
	kaTimeout      time.Duration
	userAgent      string
	proxyURL       string
	proxyUsername  string
	proxyPassword  string
	bearerToken    string
	headers        []string
	s3Profile      string
	s3Region       string
	s3Endpoint     string
)

// cfg is the effective configuration once flags are applied
var cfg config.Config

var ChanfetchVersion = "dev"

var rootCmd = &cobra.Command{
	Use:           "chanfetch",
	Short:         "chanfetch downloads image-board media with parallel ranged connections",
	Version:       ChanfetchVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		utils.InitLogger(debug)
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlags(cmd, &loaded)
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		if cfg.LogFile != "" {
			f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("error opening log file: %w", err)
			}
			utils.SetLogOutput(f)
		}
		return nil
	},
}

// applyFlags overrides file and env values with flags the user actually set.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("log-file") {
		c.LogFile = logFile
	}
	if flags.Changed("output-dir") {
		c.OutputDir = outputDir
	}
	if flags.Changed("connections") {
		c.Connections = connections
	}
	if flags.Changed("max-concurrency") {
		c.MaxConcurrency = maxConcurrency
	}
	if flags.Changed("limit-rate") {
		c.BandwidthLimit = bandwidthLimit
	}
	if flags.Changed("stall-timeout") {
		c.StallTimeout = stallTimeout
	}
	if flags.Changed("timeout") {
		c.HTTP.Timeout = timeout
	}
	if flags.Changed("keep-alive-timeout") {
		c.HTTP.KeepAliveTimeout = kaTimeout
	}
	if flags.Changed("user-agent") {
		c.HTTP.UserAgent = userAgent
	}
	if c.HTTP.UserAgent == "randomize" {
		c.HTTP.UserAgent = utils.GetRandomUserAgent()
	}
	if flags.Changed("proxy") {
		c.HTTP.Proxy = proxyURL
	}
	if flags.Changed("proxy-username") {
		c.HTTP.ProxyUsername = proxyUsername
	}
	if flags.Changed("proxy-password") {
		c.HTTP.ProxyPassword = proxyPassword
	}
	// Check if proxy URL contains auth
	parsedProxy, err := u.Parse(c.HTTP.Proxy)
	if err == nil && parsedProxy.User != nil && c.HTTP.ProxyUsername == "" {
		c.HTTP.ProxyUsername = parsedProxy.User.Username()
		if password, set := parsedProxy.User.Password(); set {
			c.HTTP.ProxyPassword = password
		}
		parsedProxy.User = nil
		c.HTTP.Proxy = parsedProxy.String()
	}
	if flags.Changed("token") {
		c.HTTP.BearerToken = bearerToken
	}
	if len(headers) > 0 {
		if c.HTTP.Headers == nil {
			c.HTTP.Headers = make(map[string]string)
		}
		for k, v := range utils.ParseHeaderArgs(headers) {
			c.HTTP.Headers[k] = v
		}
	}
	if flags.Changed("s3-profile") {
		c.S3.Profile = s3Profile
	}
	if flags.Changed("s3-region") {
		c.S3.Region = s3Region
	}
	if flags.Changed("s3-endpoint") {
		c.S3.Endpoint = s3Endpoint
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		output.PrintError(err.Error())
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to YAML config file (CHANFETCH_* env vars override it)")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
	flags.StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")
	flags.StringVarP(&outputDir, "output-dir", "d", ".", "Root directory for downloaded files")
	flags.IntVarP(&connections, "connections", "c", 4, "Maximum ranged connections per file (above 5 enables high-thread-mode)")
	flags.IntVar(&maxConcurrency, "max-concurrency", 16, "Maximum chunk downloads in flight across all files")
	flags.Var(&bandwidthLimit, "limit-rate", "Total bandwidth limit (eg. 2MB, 512KiB); 0 means unlimited")
	flags.DurationVar(&stallTimeout, "stall-timeout", 60*time.Second, "Fail a download that makes no progress for this long (0 disables)")
	flags.DurationVarP(&timeout, "timeout", "t", 0, "Whole-request timeout for each chunk (0 disables)")
	flags.DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	flags.StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent ('randomize' picks a browser agent)")
	flags.StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	flags.StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	flags.StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	flags.StringVar(&bearerToken, "token", "", "Bearer token for boards that require authorization")
	flags.StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Cookie: pass_id=...'); can be specified multiple times")
	flags.StringVar(&s3Profile, "s3-profile", "", "AWS profile for s3:// links")
	flags.StringVar(&s3Region, "s3-region", "", "AWS region for s3:// links")
	flags.StringVar(&s3Endpoint, "s3-endpoint", "", "Custom endpoint for S3-compatible archives")

	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newProbeCmd())
	rootCmd.AddCommand(newCleanCmd())
}
