package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"imagedl/internal/downloader"
	"imagedl/pkg/auth"
	"imagedl/pkg/codec"
	"imagedl/pkg/config"
	"imagedl/pkg/engine"
	"imagedl/pkg/errors"
	"imagedl/pkg/extractor"
	"imagedl/pkg/extractor/direct"
	"imagedl/pkg/extractor/instagram"
	"imagedl/pkg/extractor/pinterest"
	"imagedl/pkg/logger"
	"imagedl/pkg/postprocess"
	"imagedl/pkg/ratelimit"
	"imagedl/pkg/selection"
	"imagedl/pkg/template"
	"imagedl/pkg/transport"
)

const (
	exitOK         = 0
	exitFailure    = 1
	exitUsageError = 2
)

var (
	configFile   string
	ignoreConfig bool

	outputTemplate string
	outputDir      string
	naPlaceholder  string
	restrictNames  bool
	trimNames      int

	quality        string
	formatAlias    string
	limitRate      string
	retries        int
	concurrency    int
	proxyURL       string
	userAgent      string
	forceOverwrite bool

	playlistItems string
	dateExact     string
	dateBefore    string
	dateAfter     string
	minFilesize   string
	maxFilesize   string

	username           string
	password           string
	cookiesFile        string
	cookiesFromBrowser string

	convertImages    string
	imageQuality     int
	embedMetadata    bool
	writeInfoJSON    bool
	writeDescription bool

	simulate     bool
	skipDownload bool
	verbose      bool
	quiet        bool
)

var rootCmd = &cobra.Command{
	Use:   "imagedl [flags] URL [URL...]",
	Short: "Download images and galleries from supported platforms",
	Long: `imagedl downloads single images and whole galleries from supported
platforms (Instagram posts and reels, Pinterest pins, direct image URLs).

Items within a gallery can be narrowed by index, upload date and file
size, output paths are rendered from a metadata template, and downloads
run concurrently with rate limiting and automatic retries.`,
	Example: `  # Download a whole carousel
  imagedl https://www.instagram.com/p/Cxyz123/

  # Items 1, 3 and 5-10 only, into a custom path
  imagedl --playlist-items 1,3,5-10 -o "%(uploader)s/%(title)s [%(id)s].%(ext)s" URL

  # Throttled, converted, with metadata sidecars
  imagedl -r 500k --convert-images png --write-info-json URL`,
	Args: cobra.ArbitraryArgs,
	Run:  runRoot,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsageError)
	}
}

func init() {
	flags := rootCmd.Flags()

	flags.StringVarP(&configFile, "config", "c", "", "config file (default is $HOME/.imagedl.yaml)")
	flags.BoolVar(&ignoreConfig, "ignore-config", false, "do not read the persistent arguments file")

	flags.StringVarP(&outputTemplate, "output", "o", "", "output path template, e.g. \"%(uploader)s/%(title)s [%(id)s].%(ext)s\"")
	flags.StringVar(&outputDir, "paths", "", "directory to place downloads under")
	flags.StringVar(&naPlaceholder, "output-na-placeholder", "", "placeholder for unavailable template fields")
	flags.BoolVar(&restrictNames, "restrict-filenames", false, "restrict filenames to ASCII characters")
	flags.IntVar(&trimNames, "trim-filenames", 0, "limit the length of substituted filename fields")

	flags.StringVar(&quality, "quality", "", "variant to download: best, worst or original")
	flags.StringVarP(&formatAlias, "format", "f", "", "alias for --quality")
	flags.StringVarP(&limitRate, "limit-rate", "r", "", "maximum aggregate download rate, e.g. 500k or 4.2M")
	flags.IntVarP(&retries, "retries", "R", 0, "maximum attempts per download (default 10)")
	flags.IntVarP(&concurrency, "concurrency", "j", 0, "number of concurrent downloads")
	flags.StringVar(&proxyURL, "proxy", "", "HTTP/HTTPS proxy URL")
	flags.StringVar(&userAgent, "user-agent", "", "override the User-Agent header")
	flags.BoolVar(&forceOverwrite, "force-overwrites", false, "re-download files that already exist")

	flags.StringVar(&playlistItems, "playlist-items", "", "item indices to download, e.g. 1,3,5-10")
	flags.StringVar(&dateExact, "date", "", "only items uploaded on this date (YYYYMMDD)")
	flags.StringVar(&dateBefore, "datebefore", "", "only items uploaded on or before this date")
	flags.StringVar(&dateAfter, "dateafter", "", "only items uploaded on or after this date")
	flags.StringVar(&minFilesize, "min-filesize", "", "skip items smaller than this, e.g. 50k")
	flags.StringVar(&maxFilesize, "max-filesize", "", "skip items larger than this, e.g. 10M")

	flags.StringVarP(&username, "username", "u", "", "account username for the target platform")
	flags.StringVarP(&password, "password", "p", "", "account password (prompted when omitted)")
	flags.StringVar(&cookiesFile, "cookies", "", "Netscape format cookies file")
	flags.StringVar(&cookiesFromBrowser, "cookies-from-browser", "", "use cookies exported from this browser")

	flags.StringVar(&convertImages, "convert-images", "", "convert downloads to this format (jpg, png, gif)")
	flags.IntVar(&imageQuality, "image-quality", 0, "JPEG quality for conversion (1-100)")
	flags.BoolVar(&embedMetadata, "embed-metadata", false, "embed metadata into the image file")
	flags.BoolVar(&writeInfoJSON, "write-info-json", false, "write a .info.json metadata sidecar")
	flags.BoolVar(&writeDescription, "write-description", false, "write a .description sidecar")

	flags.BoolVarP(&simulate, "simulate", "s", false, "list what would be downloaded without downloading")
	flags.BoolVar(&skipDownload, "skip-download", false, "write sidecars without downloading media")
	flags.BoolVarP(&verbose, "verbose", "v", false, "attempt-by-attempt retry detail")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress per-item progress output")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func runRoot(cmd *cobra.Command, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "error: at least one URL is required")
		_ = cmd.Usage()
		os.Exit(exitUsageError)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		fatalUsage(err)
	}
	applyFlagOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		fatalUsage(err)
	}

	if err := logger.Initialize(logger.Options{Level: cfg.Logging.Level, File: cfg.Logging.File}); err != nil {
		fatalUsage(err)
	}
	log := logger.GetLogger()

	// All input validation happens before any network activity.
	tmpl, err := template.Parse(cfg.Output.Template, template.Options{
		NAPlaceholder: cfg.Output.NAPlaceholder,
		RestrictASCII: cfg.Output.RestrictFilenames,
		TrimLength:    cfg.Output.TrimNames,
	})
	if err != nil {
		fatalUsage(err)
	}

	filter, err := selection.Parse(selection.Criteria{
		Items:      playlistItems,
		Date:       dateExact,
		DateBefore: dateBefore,
		DateAfter:  dateAfter,
		MinSize:    minFilesize,
		MaxSize:    maxFilesize,
	})
	if err != nil {
		fatalUsage(err)
	}

	var limiter *ratelimit.ByteLimiter
	if cfg.Download.LimitRate != "" {
		bytesPerSec, err := selection.ParseByteSize(cfg.Download.LimitRate)
		if err != nil {
			fatalUsage(err)
		}
		limiter = ratelimit.NewByteLimiter(bytesPerSec)
	}

	var pacer ratelimit.Limiter
	if cfg.Network.RequestsPerMinute > 0 {
		pacer = ratelimit.NewTokenBucket(cfg.Network.RequestsPerMinute, time.Minute)
	}

	client, err := transport.New(transport.Options{
		UserAgent:      cfg.Network.UserAgent,
		Proxy:          cfg.Network.Proxy,
		Timeout:        cfg.Network.Timeout,
		RequestLimiter: pacer,
	})
	if err != nil {
		fatalUsage(err)
	}

	authCtx, err := buildAuthContext(client)
	if err != nil {
		fatalUsage(err)
	}

	registry := extractor.NewRegistry(
		instagram.New(client),
		pinterest.New(client),
		direct.New(),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := engine.New(engine.Options{
		Registry:     registry,
		Fetcher:      client,
		Template:     tmpl,
		Filter:       filter,
		Pipeline:     buildPipeline(cfg),
		Pool:         poolOptions(cfg, limiter),
		OutputDir:    cfg.Output.Directory,
		Quality:      cfg.Download.Quality,
		Auth:         authCtx,
		SkipDownload: skipDownload,
		Logger:       log,
	})

	report := eng.Run(ctx, args)
	printSummary(report)
	os.Exit(report.ExitCode())
}

func applyFlagOverrides(cfg *config.Config) {
	if outputTemplate != "" {
		cfg.Output.Template = outputTemplate
	}
	if outputDir != "" {
		cfg.Output.Directory = outputDir
	}
	if naPlaceholder != "" {
		cfg.Output.NAPlaceholder = naPlaceholder
	}
	if restrictNames {
		cfg.Output.RestrictFilenames = true
	}
	if trimNames > 0 {
		cfg.Output.TrimNames = trimNames
	}
	if formatAlias != "" && quality == "" {
		quality = formatAlias
	}
	if quality != "" {
		cfg.Download.Quality = quality
	}
	if limitRate != "" {
		cfg.Download.LimitRate = limitRate
	}
	if retries > 0 {
		cfg.Download.MaxAttempts = retries
	}
	if concurrency > 0 {
		cfg.Download.Concurrency = concurrency
	}
	if forceOverwrite {
		cfg.Download.SkipExisting = false
	}
	if proxyURL != "" {
		cfg.Network.Proxy = proxyURL
	}
	if userAgent != "" {
		cfg.Network.UserAgent = userAgent
	}
	if convertImages != "" {
		cfg.Postprocess.ConvertTo = convertImages
	}
	if embedMetadata {
		cfg.Postprocess.EmbedMetadata = true
	}
	if writeInfoJSON {
		cfg.Postprocess.WriteInfoJSON = true
	}
	if writeDescription {
		cfg.Postprocess.WriteDescription = true
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if quiet {
		cfg.Logging.Level = "error"
	}
}

func poolOptions(cfg *config.Config, limiter *ratelimit.ByteLimiter) downloader.Options {
	return downloader.Options{
		Workers:        cfg.Download.Concurrency,
		MaxAttempts:    cfg.Download.MaxAttempts,
		AttemptTimeout: cfg.Download.AttemptTimeout,
		Limiter:        limiter,
		SkipExisting:   cfg.Download.SkipExisting,
		Simulate:       simulate,
	}
}

func buildPipeline(cfg *config.Config) *postprocess.Pipeline {
	var steps []postprocess.Step
	if cfg.Postprocess.ConvertTo != "" && !skipDownload {
		c := codec.New()
		if imageQuality > 0 {
			c = codec.NewWithQuality(imageQuality)
		}
		steps = append(steps, &postprocess.ConvertStep{Codec: c, TargetExt: cfg.Postprocess.ConvertTo})
	}
	if cfg.Postprocess.EmbedMetadata && !skipDownload {
		steps = append(steps, &postprocess.EmbedStep{Codec: codec.New()})
	}
	if cfg.Postprocess.WriteInfoJSON {
		steps = append(steps, &postprocess.InfoJSONStep{})
	}
	if cfg.Postprocess.WriteDescription {
		steps = append(steps, &postprocess.DescriptionStep{})
	}
	return postprocess.NewPipeline(logger.GetLogger(), steps...)
}

// buildAuthContext assembles credentials from flags, the credential store
// and cookie files, seeding the transport cookie jar as a side effect.
func buildAuthContext(client *transport.Client) (*extractor.AuthContext, error) {
	authCtx := &extractor.AuthContext{Username: username, Password: password}

	if username != "" && password == "" {
		pw, err := promptPassword(fmt.Sprintf("password for %s: ", username))
		if err != nil {
			return nil, err
		}
		authCtx.Password = pw
	}

	// Without explicit flags, fall back to the most recently stored account.
	if authCtx.Username == "" {
		if manager, err := auth.NewManager(); err == nil {
			if accounts, err := manager.List(); err == nil && len(accounts) > 0 {
				latest := accounts[0]
				for _, a := range accounts[1:] {
					if a.LastModified.After(latest.LastModified) {
						latest = a
					}
				}
				authCtx.Username = latest.Username
				authCtx.Password = latest.Password
			}
		}
	}

	path := cookiesFile
	if path == "" && cookiesFromBrowser != "" {
		var err error
		path, err = auth.BrowserCookiesPath(cookiesFromBrowser)
		if err != nil {
			return nil, err
		}
	}
	if path != "" {
		cookies, err := auth.LoadCookiesFile(path)
		if err != nil {
			return nil, err
		}
		authCtx.Cookies = cookies
		seedCookieJar(client, cookies)
	}

	return authCtx, nil
}

// seedCookieJar registers the loaded cookies with the shared client, one
// SetCookies call per cookie domain.
func seedCookieJar(client *transport.Client, cookies []*http.Cookie) {
	byDomain := make(map[string][]*http.Cookie)
	for _, c := range cookies {
		byDomain[c.Domain] = append(byDomain[c.Domain], c)
	}
	for domain, list := range byDomain {
		u, err := url.Parse("https://" + domain + "/")
		if err != nil {
			continue
		}
		client.SetCookies(u, list)
	}
}

func printSummary(report *engine.Report) {
	fmt.Println()
	if report.Download != nil {
		for _, out := range report.Download.Outcomes {
			if out.Status == downloader.StatusSimulated {
				fmt.Printf("[simulate] %s -> %s\n", out.Job.URL, out.Job.DestPath)
			}
		}
		fmt.Printf("downloaded: %d, skipped: %d, failed: %d, cancelled: %d",
			report.Download.Count(downloader.StatusDownloaded),
			report.Download.Count(downloader.StatusSkipped),
			report.Download.Count(downloader.StatusFailed),
			report.Download.Count(downloader.StatusCancelled))
		if n := report.Download.Count(downloader.StatusSimulated); n > 0 {
			fmt.Printf(", simulated: %d", n)
		}
		fmt.Printf(" (%d bytes in %s)\n", report.Download.Bytes(), report.Duration.Round(10*time.Millisecond))

		for _, kc := range report.Download.FailureKinds() {
			fmt.Printf("  %s: %d\n", kc.Kind, kc.Count)
		}
	}
	for _, ue := range report.URLErrors {
		fmt.Printf("failed URL %s: %v (%s)\n", ue.URL, ue.Err, errors.KindOf(ue.Err))
	}
	for _, pe := range report.PostErrors {
		fmt.Printf("post-processing failed for %s: %v\n", pe.Path, pe.Err)
	}
}

func fatalUsage(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(exitUsageError)
}
