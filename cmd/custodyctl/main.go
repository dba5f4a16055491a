package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"kidcheck/internal/config"
	"kidcheck/internal/database"
	"kidcheck/internal/logger"
	"kidcheck/internal/security"
	"kidcheck/internal/service"
)

func main() {
	// Define subcommands
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	tokenCmd := flag.NewFlagSet("issue-token", flag.ExitOnError)
	expireCmd := flag.NewFlagSet("expire-grants", flag.ExitOnError)

	configPath := ""
	for _, fs := range []*flag.FlagSet{exportCmd, importCmd, tokenCmd, expireCmd} {
		fs.StringVar(&configPath, "config", "", "Path to a YAML config file")
	}

	exportOutput := exportCmd.String("output", "", "Output file path (default: kidcheck_backup_YYYYMMDD_HHMMSS.json)")
	importInput := importCmd.String("input", "", "Input file path (required)")
	tokenActor := tokenCmd.String("actor", "", "Actor id placed in the token subject (required)")
	tokenRoles := tokenCmd.String("roles", "staff", "Comma-separated roles")
	tokenTTL := tokenCmd.Duration("ttl", 0, "Token lifetime (default: auth.token_ttl)")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "export":
		exportCmd.Parse(os.Args[2:])
		withServices(configPath, func(ctx context.Context, svc *service.Services) {
			handleExport(ctx, svc.Backup, *exportOutput)
		})

	case "import":
		importCmd.Parse(os.Args[2:])
		if *importInput == "" {
			fmt.Println("Error: -input flag is required")
			importCmd.PrintDefaults()
			os.Exit(1)
		}
		withServices(configPath, func(ctx context.Context, svc *service.Services) {
			handleImport(ctx, svc.Backup, *importInput)
		})

	case "expire-grants":
		expireCmd.Parse(os.Args[2:])
		withServices(configPath, func(ctx context.Context, svc *service.Services) {
			n, err := svc.Grants.ExpireStale(ctx, time.Now())
			if err != nil {
				log.Fatalf("Expire failed: %v", err)
			}
			log.Printf("Expired %d grant(s)", n)
		})

	case "issue-token":
		tokenCmd.Parse(os.Args[2:])
		if *tokenActor == "" {
			fmt.Println("Error: -actor flag is required")
			tokenCmd.PrintDefaults()
			os.Exit(1)
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		token, err := security.NewTokenManager(cfg.Auth).Issue(*tokenActor, splitRoles(*tokenRoles), *tokenTTL)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)

	default:
		printUsage()
		os.Exit(1)
	}
}

// withServices opens the configured database, brings the schema up to date
// and runs fn against the services
func withServices(configPath string, fn func(ctx context.Context, svc *service.Services)) {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	db, err := database.InitializeWithConfig(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Run migrations to ensure schema is up to date
	if err := db.RunMigrations(ctx, cfg.Database.MigrationsPath, zl); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	loc, err := cfg.Custody.Location()
	if err != nil {
		log.Fatalf("Invalid timezone: %v", err)
	}

	svc := service.New(service.Dependencies{
		DB:       db,
		PINs:     security.NewPINHasher(cfg.Custody.PINCost),
		QR:       security.NewQRSigner(cfg.Custody.QRSecret),
		Audit:    service.MultiAuditSink{service.NewDBAuditSink(db), service.NewLogAuditSink(zl)},
		Logger:   zl,
		Location: loc,
	})
	zl.Debug("services ready", zap.String("db", db.Dialect.Name()))

	fn(ctx, svc)
}

func handleExport(ctx context.Context, backupService *service.BackupService, outputPath string) {
	// Generate default filename if not provided
	if outputPath == "" {
		timestamp := time.Now().Format("20060102_150405")
		outputPath = fmt.Sprintf("kidcheck_backup_%s.json", timestamp)
	}

	// Ensure directory exists
	dir := filepath.Dir(outputPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
	}

	f, err := os.Create(outputPath)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	log.Printf("Exporting database to: %s", outputPath)
	data, err := backupService.Export(ctx, f)
	if err != nil {
		log.Fatalf("Export failed: %v", err)
	}

	fileInfo, _ := f.Stat()
	log.Printf("Export complete! %d children, %d custody records, %.2f MB",
		len(data.Children), len(data.CustodyRecords), float64(fileInfo.Size())/1024/1024)
}

func handleImport(ctx context.Context, backupService *service.BackupService, inputPath string) {
	f, err := os.Open(inputPath)
	if err != nil {
		log.Fatalf("Failed to open input file: %v", err)
	}
	defer f.Close()

	log.Printf("Importing database from: %s", inputPath)
	summary, err := backupService.Import(ctx, f)
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}

	log.Printf("Import complete! classrooms=%d children=%d guardians=%d links=%d authorized_pickups=%d",
		summary.Classrooms, summary.Children, summary.Guardians, summary.Links, summary.AuthorizedPickups)
}

func splitRoles(s string) []string {
	var roles []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

func printUsage() {
	fmt.Println("kidcheck administration tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  custodyctl export [options]          Export database to JSON file")
	fmt.Println("  custodyctl import [options]          Restore the roster from a JSON backup")
	fmt.Println("  custodyctl issue-token [options]     Print a bearer token for an actor")
	fmt.Println("  custodyctl expire-grants             Expire lapsed pickup grants")
	fmt.Println()
	fmt.Println("Common Options:")
	fmt.Println("  -config <file>    YAML config file (default: ./config/config.yaml when present)")
	fmt.Println()
	fmt.Println("Export Options:")
	fmt.Println("  -output <file>    Output file path (default: kidcheck_backup_YYYYMMDD_HHMMSS.json)")
	fmt.Println()
	fmt.Println("Import Options:")
	fmt.Println("  -input <file>     Input file path (required)")
	fmt.Println()
	fmt.Println("Token Options:")
	fmt.Println("  -actor <id>       Actor id (required)")
	fmt.Println("  -roles <list>     Comma-separated roles, e.g. staff,leader (default: staff)")
	fmt.Println("  -ttl <duration>   Token lifetime, e.g. 12h")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  KIDCHECK_DB_TYPE    Database type: sqlite, postgres, or mysql (default: sqlite)")
	fmt.Println("  KIDCHECK_DB_PATH    SQLite database path")
	fmt.Println("  KIDCHECK_DB_URL     PostgreSQL or MySQL connection URL")
}
