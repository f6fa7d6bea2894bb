package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/scheimong/openvpn-cred-management/common"
	"github.com/scheimong/openvpn-cred-management/config"
	"github.com/scheimong/openvpn-cred-management/packaging"
	"github.com/scheimong/openvpn-cred-management/pki"
	"github.com/scheimong/openvpn-cred-management/scripts"
)

var flagConfig *cli.StringFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "Path to the configuration file. Defaults to the OS config directory for openvpn-cred-management",
}
var flagProfile *cli.StringFlag = &cli.StringFlag{
	Name:    "profile",
	Aliases: []string{"p"},
	Usage:   "Profile to operate on. Defaults to the config's default-profile",
}
var flagNoPostActionScripts *cli.BoolFlag = &cli.BoolFlag{
	Name:  "no-post-action-scripts",
	Usage: "Do not run post-action scripts",
}
var flagLogJSON = &cli.BoolFlag{
	Name:  "log-json",
	Usage: "log in JSON format",
}
var flagLogDebug = &cli.BoolFlag{
	Name:  "log-debug",
	Usage: "log debug messages",
}

var flagOnlyExpired = &cli.BoolFlag{
	Name:    "expired",
	Aliases: []string{"e"},
	Usage:   "Only show expired certificates",
}
var flagNearExpiry = &cli.DurationFlag{
	Name:    "near-expiry",
	Aliases: []string{"n"},
	Usage:   "Only show certificates that are within a specific duration until their expiry",
}
var flagDays = &cli.IntFlag{
	Name:    "days",
	Aliases: []string{"d"},
	Usage:   "The number of days the certificate stays valid",
}
var flagKeepOld = &cli.BoolFlag{
	Name:    "keep-old",
	Aliases: []string{"k"},
	Usage:   "Do not revoke the replaced certificates",
}
var flagNoUpdateCRL = &cli.BoolFlag{
	Name:  "no-update-crl",
	Usage: "Do not regenerate the CRL after revoking",
}
var flagAddPrefix = &cli.BoolFlag{
	Name:    "add-prefix",
	Aliases: []string{"pre"},
	Usage:   "Add the profile name as a prefix to the package name",
}
var flagOutputDir = &cli.StringFlag{
	Name:    "output-dir",
	Aliases: []string{"o"},
	Value:   ".",
	Usage:   "Output packages to a directory other than the current working directory",
}
var flagKeepTemp = &cli.BoolFlag{
	Name:  "keep-temp",
	Usage: "Keep temporary intermediate artifacts instead of deleting them. Helpful for debugging",
}
var flagAllowOverwrite = &cli.BoolFlag{
	Name:  "allow-overwrite",
	Usage: "Overwrite existing package files in the output directory",
}

func main() {
	cliApp := &cli.App{
		Name:    "ovpncm",
		Usage:   "manage OpenVPN client credentials issued by EasyRSA",
		Version: common.Version,
		Flags: []cli.Flag{
			flagConfig,
			flagProfile,
			flagNoPostActionScripts,
			flagLogJSON,
			flagLogDebug,
		},
		Commands: []*cli.Command{
			{
				Name:  "gen",
				Usage: "Generate artefacts",
				Subcommands: []*cli.Command{
					{
						Name:   "config",
						Usage:  "Write an annotated example config file",
						Action: genConfig,
					},
				},
			},
			{
				Name:  "profile",
				Usage: "Operations on profiles",
				Subcommands: []*cli.Command{
					{
						Name:    "list",
						Aliases: []string{"ls"},
						Usage:   "List all known profiles",
						Action:  profileList,
					},
				},
			},
			{
				Name:  "user",
				Usage: "Operations on users",
				Subcommands: []*cli.Command{
					{
						Name:    "list",
						Aliases: []string{"ls"},
						Usage:   "List all users, with optional filtering",
						Flags:   []cli.Flag{flagOnlyExpired, flagNearExpiry},
						Action:  withApp((*app).userList),
					},
					{
						Name:      "info",
						Aliases:   []string{"get", "show"},
						Usage:     "Show info on the certificates of specified users",
						ArgsUsage: "NAME...",
						Action:    withApp((*app).userInfo),
					},
					{
						Name:      "new",
						Aliases:   []string{"add", "create"},
						Usage:     "Generate certificates for new users",
						ArgsUsage: "NAME...",
						Flags:     []cli.Flag{flagDays},
						Action:    withApp((*app).userNew),
					},
					{
						Name:      "renew",
						Usage:     "Renew certificates for existing users",
						ArgsUsage: "NAME...",
						Flags:     []cli.Flag{flagDays, flagKeepOld},
						Action:    withApp((*app).userRenew),
					},
					{
						Name:      "remove",
						Aliases:   []string{"rm", "del", "delete"},
						Usage:     "Revoke the certificates of existing users",
						ArgsUsage: "NAME...",
						Flags:     []cli.Flag{flagNoUpdateCRL},
						Action:    withApp((*app).userRemove),
					},
					{
						Name:      "package",
						Aliases:   []string{"pkg"},
						Usage:     "Create redistributable packages for the specified users",
						ArgsUsage: "NAME...",
						Flags: []cli.Flag{
							flagAddPrefix,
							flagOutputDir,
							flagKeepTemp,
							flagAllowOverwrite,
						},
						Action: withApp((*app).userPackage),
					},
				},
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// app wires one invocation: config, selected profile and the components.
type app struct {
	log     *slog.Logger
	cfg     *config.Config
	profile *config.Profile
	pkiDir  string
	scanner *pki.Scanner
	easyrsa *pki.EasyRSA
	runner  *scripts.Runner
}

func setupLogger(cCtx *cli.Context) *slog.Logger {
	return common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool(flagLogDebug.Name),
		JSON:    cCtx.Bool(flagLogJSON.Name),
		Service: "ovpncm",
		Version: common.Version,
	})
}

func configPath(cCtx *cli.Context) (string, error) {
	if path := cCtx.String(flagConfig.Name); path != "" {
		return path, nil
	}
	return config.DefaultPath()
}

func newApp(cCtx *cli.Context) (*app, error) {
	logger := setupLogger(cCtx)

	path, err := configPath(cCtx)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	profile, err := cfg.GetProfile(cCtx.String(flagProfile.Name))
	if err != nil {
		return nil, err
	}
	pkiDir := cfg.PKIDir(profile)

	return &app{
		log:     logger,
		cfg:     cfg,
		profile: profile,
		pkiDir:  pkiDir,
		scanner: pki.NewScanner(logger),
		easyrsa: &pki.EasyRSA{Path: cfg.EasyRSAPath, PKIDir: pkiDir, Log: logger},
		runner: &scripts.Runner{
			Log:      logger,
			Disabled: cCtx.Bool(flagNoPostActionScripts.Name),
		},
	}, nil
}

func withApp(action func(*app, *cli.Context) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		a, err := newApp(cCtx)
		if err != nil {
			return err
		}
		return action(a, cCtx)
	}
}

func (a *app) postAction(kind scripts.ActionKind) error {
	return a.runner.RunPostAction(kind, a.profile.ScriptsMap())
}

func (a *app) userList(cCtx *cli.Context) error {
	onlyExpired := cCtx.Bool(flagOnlyExpired.Name)
	nearExpiry := cCtx.IsSet(flagNearExpiry.Name)
	if onlyExpired && nearExpiry {
		return fmt.Errorf("--expired and --near-expiry are mutually exclusive")
	}

	switch {
	case onlyExpired:
		records, _, err := a.expiryRecords()
		if err != nil {
			return err
		}
		for _, record := range pki.ExpiredUsers(records) {
			fmt.Printf("%s\t%s\texpired %s\n",
				record.User, record.Serial, record.Expires.Format(time.DateTime))
		}
	case nearExpiry:
		records, now, err := a.expiryRecords()
		if err != nil {
			return err
		}
		period := cCtx.Duration(flagNearExpiry.Name)
		for _, record := range pki.ExpiringWithin(records, now, period) {
			fmt.Printf("%s\t%s\texpires %s\n",
				record.User, record.Serial, record.Expires.Format(time.DateTime))
		}
	default:
		users, err := a.scanner.KnownUsers(a.pkiDir)
		if err != nil {
			return err
		}
		for _, user := range users {
			fmt.Println(user)
		}
	}
	return a.postAction(scripts.ActionList)
}

// expiryRecords runs the expiry report and parses it against a single
// evaluation instant, which is returned alongside the records.
func (a *app) expiryRecords() ([]pki.ExpiryRecord, time.Time, error) {
	now := time.Now()
	raw, err := a.easyrsa.ShowExpire(pki.ReportHorizonDays(now))
	if err != nil {
		return nil, now, err
	}
	return pki.ParseExpiryReport(raw, now, a.log), now, nil
}

func (a *app) userInfo(cCtx *cli.Context) error {
	users, err := a.requestedKnownUsers(cCtx)
	if err != nil {
		return err
	}

	records, _, err := a.expiryRecords()
	if err != nil {
		return err
	}
	expiry := make(map[pki.Username]pki.ExpiryRecord)
	for _, record := range records {
		if _, ok := expiry[record.User]; !ok {
			expiry[record.User] = record
		}
	}

	for _, user := range users {
		fmt.Printf("user: %s\n", user)
		if path, err := pki.CertPath(a.pkiDir, user); err == nil {
			fmt.Printf("  certificate: %s\n", path)
		} else {
			fmt.Println("  certificate: missing")
		}
		if path, err := pki.KeyPath(a.pkiDir, user); err == nil {
			fmt.Printf("  key: %s\n", path)
		} else {
			fmt.Println("  key: missing")
		}
		if record, ok := expiry[user]; ok {
			status := "valid"
			if record.Expired {
				status = "expired"
			}
			fmt.Printf("  expiry: %s (%s, serial %s)\n",
				record.Expires.Format(time.DateTime), status, record.Serial)
		}
	}
	return a.postAction(scripts.ActionInfo)
}

func (a *app) userNew(cCtx *cli.Context) error {
	users, err := pki.ParseUsernames(cCtx.Args().Slice())
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return fmt.Errorf("no usernames given")
	}

	known, err := a.scanner.KnownUsers(a.pkiDir)
	if err != nil {
		return err
	}
	knownSet := userSet(known)
	for _, user := range users {
		if knownSet[user] {
			return fmt.Errorf("user %q already exists in profile %q", user, a.profile.Name)
		}
	}

	days := cCtx.Int(flagDays.Name)
	for _, user := range users {
		if err := a.easyrsa.BuildClientFull(user, days); err != nil {
			return err
		}
	}
	return a.postAction(scripts.ActionNewUser)
}

func (a *app) userRenew(cCtx *cli.Context) error {
	users, err := a.requestedKnownUsers(cCtx)
	if err != nil {
		return err
	}

	keepOld := cCtx.Bool(flagKeepOld.Name)
	if !keepOld {
		for _, user := range users {
			if err := a.easyrsa.Revoke(user); err != nil {
				return err
			}
		}
		if err := a.easyrsa.GenCRL(); err != nil {
			return err
		}
	}

	days := cCtx.Int(flagDays.Name)
	for _, user := range users {
		if err := a.easyrsa.BuildClientFull(user, days); err != nil {
			return err
		}
	}
	// Renew is not a scriptable kind, so there is no post-action hook.
	return nil
}

func (a *app) userRemove(cCtx *cli.Context) error {
	users, err := a.requestedKnownUsers(cCtx)
	if err != nil {
		return err
	}

	for _, user := range users {
		if err := a.easyrsa.Revoke(user); err != nil {
			return err
		}
	}
	if !cCtx.Bool(flagNoUpdateCRL.Name) {
		if err := a.easyrsa.GenCRL(); err != nil {
			return err
		}
	}
	return a.postAction(scripts.ActionRemoveUser)
}

func (a *app) userPackage(cCtx *cli.Context) error {
	users, err := pki.ParseUsernames(cCtx.Args().Slice())
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return fmt.Errorf("no usernames given")
	}

	known, err := a.scanner.KnownUsers(a.pkiDir)
	if err != nil {
		return err
	}

	var spec *packaging.Spec
	if pkg := a.profile.Packaging; pkg != nil {
		spec = &packaging.Spec{
			SkelDir:        a.cfg.SkelDir(a.profile),
			SkelMapScripts: pkg.SkelMapScripts,
			CertSubpath:    pkg.CertSubpath,
			KeySubpath:     pkg.KeySubpath,
		}
	}

	pipeline := &packaging.Pipeline{
		PKIDir:    a.pkiDir,
		Profile:   a.profile.Name,
		Spec:      spec,
		OutputDir: cCtx.String(flagOutputDir.Name),
		Log:       a.log,
	}
	err = pipeline.Run(known, users, packaging.Options{
		AddProfilePrefix: cCtx.Bool(flagAddPrefix.Name),
		AllowOverwrite:   cCtx.Bool(flagAllowOverwrite.Name),
		RetainWorkspace:  cCtx.Bool(flagKeepTemp.Name),
	})
	if err != nil {
		return err
	}
	return a.postAction(scripts.ActionPackage)
}

// requestedKnownUsers parses the positional usernames and rejects the whole
// batch when any of them is not currently known.
func (a *app) requestedKnownUsers(cCtx *cli.Context) ([]pki.Username, error) {
	users, err := pki.ParseUsernames(cCtx.Args().Slice())
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("no usernames given")
	}

	known, err := a.scanner.KnownUsers(a.pkiDir)
	if err != nil {
		return nil, err
	}
	knownSet := userSet(known)
	for _, user := range users {
		if !knownSet[user] {
			return nil, fmt.Errorf("user %q does not exist in profile %q", user, a.profile.Name)
		}
	}
	return users, nil
}

func userSet(users []pki.Username) map[pki.Username]bool {
	set := make(map[pki.Username]bool, len(users))
	for _, user := range users {
		set[user] = true
	}
	return set
}

func genConfig(cCtx *cli.Context) error {
	path, err := configPath(cCtx)
	if err != nil {
		return err
	}
	if err := config.WriteExample(path); err != nil {
		return err
	}
	fmt.Printf("wrote example config to %s\n", path)
	return nil
}

func profileList(cCtx *cli.Context) error {
	path, err := configPath(cCtx)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	for _, profile := range cfg.Profiles {
		if profile.Name == cfg.DefaultProfile {
			fmt.Printf("%s (default)\n", profile.Name)
		} else {
			fmt.Println(profile.Name)
		}
	}
	return nil
}
