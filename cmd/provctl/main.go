package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/provenance/internal/hashchain"
	"github.com/jmerrifield20/provenance/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL    string
	bearerToken  string
	cfgFile      string
	outputFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "provctl",
	Short: "Provenance ledger CLI",
	Long: `provctl is the command-line interface for the provenance ledger.

It lists and inspects products, records custody checkpoints, verifies
hash chains and drives the admin endpoints of a ledger server.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.provctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("PROVCTL")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if bearerToken == "" {
			bearerToken = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.provctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "ledger server URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&bearerToken, "token", "", "bearer token for authenticated calls (env PROVCTL_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "output format: text or json")

	productsCmd.AddCommand(productsListCmd, productsGetCmd, productsVerifyCmd, productsCreateCmd)
	checkpointCmd.AddCommand(checkpointAppendCmd)
	auditCmd.AddCommand(auditTailCmd)
	suspiciousCmd.AddCommand(suspiciousListCmd)
	accountsCmd.AddCommand(accountsPendingCmd, accountsVerifyCmd)

	rootCmd.AddCommand(productsCmd, checkpointCmd, auditCmd, suspiciousCmd, accountsCmd, versionCmd)
}

func newClient() (*client.Client, error) {
	var opts []client.Option
	if bearerToken != "" {
		opts = append(opts, client.WithBearerToken(bearerToken))
	}
	return client.New(serverURL, opts...)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

func ts(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}

// ── products ─────────────────────────────────────────────────────────────────

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List, inspect, verify and create products",
}

var productsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List products, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		products, err := c.ListProducts(cmd.Context())
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(products)
		}
		w := newTable()
		fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tMANUFACTURER\tSTAGE\tSTATUS\tCREATED")
		for _, p := range products {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				p.ID, p.Name, p.Category, p.Manufacturer, p.LatestStage, p.Status, ts(p.CreatedAt))
		}
		return w.Flush()
	},
}

var productsGetCmd = &cobra.Command{
	Use:   "get <product-id>",
	Short: "Show a product and its custody chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		p, err := c.GetProduct(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(p)
		}

		fmt.Printf("ID:           %s\n", p.ID)
		fmt.Printf("Name:         %s\n", p.Name)
		fmt.Printf("Category:     %s\n", p.Category)
		fmt.Printf("Origin:       %s\n", p.Origin)
		if p.BatchNumber != "" {
			fmt.Printf("Batch:        %s\n", p.BatchNumber)
		}
		verified := "unverified"
		if p.CreatorVerified {
			verified = "verified"
		}
		fmt.Printf("Manufacturer: %s (%s)\n", p.Manufacturer, verified)
		fmt.Printf("Status:       %s\n", p.Status)
		fmt.Println()

		w := newTable()
		fmt.Fprintln(w, "#\tSTAGE\tLOCATION\tHANDLER\tTIMESTAMP\tHASH")
		for _, b := range p.Chain {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
				b.BlockNumber, b.Stage, b.Location, b.Handler, ts(b.Timestamp), shortHash(b.Hash))
		}
		return w.Flush()
	},
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// verifyRow holds the outcome of verifying one product.
type verifyRow struct {
	ID     string `json:"product_id"`
	Valid  bool   `json:"valid"`
	Index  *int   `json:"first_invalid_index,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

var verifyRemote bool

var productsVerifyCmd = &cobra.Command{
	Use:   "verify <product-id> [product-id] ...",
	Short: "Verify the hash chain of one or more products",
	Long: `Verify fetches each product's chain and recomputes every block hash
locally, so the result does not depend on trusting the server.

With --remote the server's admin verification endpoint is used instead.
Products are verified concurrently:

  provctl products verify 550e8400-e29b-41d4-a716-446655440000 6ba7b810-9dad-11d1-80b4-00c04fd430c8`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerify,
}

func init() {
	productsVerifyCmd.Flags().BoolVar(&verifyRemote, "remote", false, "ask the server to verify (admin token required)")
}

func runVerify(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	rows := make([]verifyRow, len(args))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(8)
	for i, id := range args {
		i, id := i, id
		g.Go(func() error {
			rows[i] = verifyOne(ctx, c, id)
			return nil
		})
	}
	_ = g.Wait()

	if outputFormat == "json" {
		if err := printJSON(rows); err != nil {
			return err
		}
	} else {
		w := newTable()
		fmt.Fprintln(w, "PRODUCT\tVALID\tINDEX\tREASON")
		for _, r := range rows {
			idx := "-"
			if r.Index != nil {
				idx = fmt.Sprint(*r.Index)
			}
			reason := r.Reason
			if r.Error != "" {
				reason = r.Error
			}
			fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", r.ID, r.Valid, idx, reason)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	for _, r := range rows {
		if !r.Valid {
			return errors.New("one or more chains failed verification")
		}
	}
	return nil
}

func verifyOne(ctx context.Context, c *client.Client, id string) verifyRow {
	if verifyRemote {
		rep, err := c.VerifyChain(ctx, id)
		if err != nil {
			return verifyRow{ID: id, Error: err.Error()}
		}
		return verifyRow{ID: id, Valid: rep.Valid, Index: rep.FirstInvalidIndex, Reason: rep.Reason}
	}

	p, err := c.GetProduct(ctx, id)
	if err != nil {
		return verifyRow{ID: id, Error: err.Error()}
	}
	res := hashchain.VerifyChain(p.Chain)
	return verifyRow{ID: id, Valid: res.Valid, Index: res.FirstInvalidIndex, Reason: res.Reason}
}

var (
	createName     string
	createCategory string
	createOrigin   string
	createBatch    string
	createPhoto    string
	createGPS      gpsFlags
)

var productsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a new product (verified manufacturers only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		p, err := c.CreateProduct(cmd.Context(), client.CreateProductRequest{
			Name:        createName,
			Category:    createCategory,
			Origin:      createOrigin,
			BatchNumber: createBatch,
			GPS:         createGPS.value(cmd),
			PhotoRef:    createPhoto,
		})
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(p)
		}
		fmt.Printf("Created product %s\n", p.ID)
		if len(p.Chain) > 0 {
			fmt.Printf("Genesis hash: %s\n", p.Chain[0].Hash)
		}
		return nil
	},
}

func init() {
	f := productsCreateCmd.Flags()
	f.StringVar(&createName, "name", "", "product name (required)")
	f.StringVar(&createCategory, "category", "", "pharmaceutical, food, electronics, textiles or automotive (required)")
	f.StringVar(&createOrigin, "origin", "", "place of origin (required)")
	f.StringVar(&createBatch, "batch", "", "batch number")
	f.StringVar(&createPhoto, "photo", "", "photo reference")
	createGPS.register(f)
	_ = productsCreateCmd.MarkFlagRequired("name")
	_ = productsCreateCmd.MarkFlagRequired("category")
	_ = productsCreateCmd.MarkFlagRequired("origin")
}

// ── checkpoint ───────────────────────────────────────────────────────────────

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Record custody checkpoints",
}

var (
	cpStage    string
	cpLocation string
	cpHandler  string
	cpNotes    string
	cpPhoto    string
	cpGPS      gpsFlags
)

var checkpointAppendCmd = &cobra.Command{
	Use:   "append <product-id>",
	Short: "Append the next checkpoint to a product's chain",
	Long: `Append records the next custody stage of a product. Stages follow the order
manufacturing, quality_check, warehouse, distribution, retail, delivered.
A stage may repeat or skip ahead but never go back, and nothing follows delivered.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		b, err := c.AppendCheckpoint(cmd.Context(), args[0], client.CheckpointRequest{
			Stage:    cpStage,
			Location: cpLocation,
			Handler:  cpHandler,
			Notes:    cpNotes,
			GPS:      cpGPS.value(cmd),
			PhotoRef: cpPhoto,
		})
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(b)
		}
		fmt.Printf("Appended block %d (%s)\n", b.BlockNumber, b.Stage)
		fmt.Printf("Hash: %s\n", b.Hash)
		return nil
	},
}

func init() {
	f := checkpointAppendCmd.Flags()
	f.StringVar(&cpStage, "stage", "", "checkpoint stage (required)")
	f.StringVar(&cpLocation, "location", "", "location description (required)")
	f.StringVar(&cpHandler, "handler", "", "handler name (required)")
	f.StringVar(&cpNotes, "notes", "", "free-form notes")
	f.StringVar(&cpPhoto, "photo", "", "photo reference")
	cpGPS.register(f)
	_ = checkpointAppendCmd.MarkFlagRequired("stage")
	_ = checkpointAppendCmd.MarkFlagRequired("location")
	_ = checkpointAppendCmd.MarkFlagRequired("handler")
}

// ── audit / suspicious ───────────────────────────────────────────────────────

var listLimit int

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit log (admin only)",
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show the newest audit log entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		entries, err := c.ListAuditLog(cmd.Context(), listLimit)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(entries)
		}
		w := newTable()
		fmt.Fprintln(w, "ID\tTIME\tACTOR\tACTION\tDETAILS")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", e.ID, ts(e.Timestamp), e.ActorID, e.Action, e.Details)
		}
		return w.Flush()
	},
}

var suspiciousCmd = &cobra.Command{
	Use:   "suspicious",
	Short: "Inspect suspicious-activity findings (admin only)",
}

var suspiciousListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the newest suspicious-activity findings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		recs, err := c.ListSuspiciousActivity(cmd.Context(), listLimit)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(recs)
		}
		w := newTable()
		fmt.Fprintln(w, "ID\tTIME\tSEVERITY\tSUBJECT\tREASON\tDETAILS")
		for _, r := range recs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s:%s\t%s\t%s\n",
				r.ID, ts(r.Timestamp), r.Severity, r.SubjectType, r.SubjectID, r.Reason, r.Details)
		}
		return w.Flush()
	},
}

func init() {
	auditTailCmd.Flags().IntVar(&listLimit, "limit", 50, "number of entries to show (max 500)")
	suspiciousListCmd.Flags().IntVar(&listLimit, "limit", 50, "number of findings to show (max 500)")
}

// ── accounts ─────────────────────────────────────────────────────────────────

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Review and verify accounts (admin only)",
}

var accountsPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List accounts awaiting verification",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		accounts, err := c.ListPendingAccounts(cmd.Context())
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(accounts)
		}
		w := newTable()
		fmt.Fprintln(w, "ID\tUSERNAME\tROLE\tCOMPANY\tLICENSE")
		for _, a := range accounts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.Username, a.Role, a.Company, a.LicenseNumber)
		}
		return w.Flush()
	},
}

var accountsVerifyCmd = &cobra.Command{
	Use:   "verify <account-id>",
	Short: "Mark an account as verified",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.VerifyAccount(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Account %s verified\n", args[0])
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the provctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("provctl", version)
	},
}
