package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/academy-payments/internal/app"
	"github.com/dvloznov/academy-payments/internal/config"
	"github.com/dvloznov/academy-payments/internal/domain"
	"github.com/dvloznov/academy-payments/internal/gcsuploader"
	"github.com/dvloznov/academy-payments/internal/identity"
	"github.com/dvloznov/academy-payments/internal/logger"
	"github.com/dvloznov/academy-payments/internal/payments"
	"github.com/dvloznov/academy-payments/internal/voucher"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

func main() {
	cfg := config.Load()
	log := logger.NewFromConfig(cfg.LogLevel, cfg.LogFormat)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "process":
		runProcess(cfg, log)
	case "create":
		runCreate(cfg, log)
	case "submit":
		runSubmit(cfg, log)
	case "approve":
		runApprove(cfg, log)
	case "reject":
		runReject(cfg, log)
	case "show":
		runShow(cfg, log)
	case "sweep":
		runSweep(cfg, log)
	case "fetch-archive":
		runFetchArchive(cfg, log)
	case "history":
		runHistory(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Academy Payments CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  process        Run the voucher pipeline on a local file")
	fmt.Println("  create         Schedule a new payment")
	fmt.Println("  submit         Submit a payment with an optional voucher file")
	fmt.Println("  approve        Approve a pending submission")
	fmt.Println("  reject         Reject a pending submission")
	fmt.Println("  show           Show a payment")
	fmt.Println("  sweep          Recompute overdue payments")
	fmt.Println("  fetch-archive  Download the archived voucher of an approved payment")
	fmt.Println("  history        List the audit events of a payment from BigQuery")
	fmt.Println("  help           Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// open wires the application and returns a context carrying the logger and,
// when as is set, the acting user.
func open(cfg config.Config, log zerolog.Logger, as string) (context.Context, *app.App) {
	ctx := logger.WithContext(context.Background(), log)
	if as != "" {
		ctx = identity.WithUserID(ctx, as)
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	return ctx, a
}

func runProcess(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to the voucher file")
	mediaType := fs.String("type", "", "Declared media type (defaults to the file extension)")
	out := fs.String("out", "", "Write the processed voucher to this path")
	thumb := fs.String("thumb", "", "Write the thumbnail to this path")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Usage: cli process -file PATH [-out PATH] [-thumb PATH]")
	}
	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read file")
	}

	ctx := logger.WithContext(context.Background(), log)
	proc := voucher.NewProcessor(cfg.VoucherOptions())
	att, err := proc.Process(ctx, voucher.File{Name: filepath.Base(*filePath), MediaType: *mediaType, Data: data})
	if err != nil {
		log.Fatal().Err(err).Msg("Voucher processing failed")
	}

	fmt.Println("\n=== Voucher ===")
	fmt.Printf("File:       %s\n", att.FileName)
	fmt.Printf("Type:       %s -> %s\n", att.MediaType, att.EncodedImage.MediaType())
	fmt.Printf("Size:       %d -> %d bytes\n", att.OriginalByteSize, att.FinalByteSize)
	fmt.Printf("Compressed: %v\n", att.WasCompressed)
	fmt.Printf("Thumbnail:  %v\n", att.Thumbnail != "")

	writeImage(log, *out, att.EncodedImage)
	if att.Thumbnail != "" {
		writeImage(log, *thumb, att.Thumbnail)
	}
}

func writeImage(log zerolog.Logger, path string, img voucher.EncodedImage) {
	if path == "" {
		return
	}
	data, err := img.Decode()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to decode image")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to write image")
	}
	fmt.Printf("Wrote %s (%d bytes)\n", path, len(data))
}

func runCreate(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	payer := fs.String("payer", "", "Payer subject ID")
	amount := fs.String("amount", "", "Amount (defaults to the category's amount)")
	category := fs.String("category", "", "Category reference")
	due := fs.String("due", "", "Due date, YYYY-MM-DD")
	fs.Parse(os.Args[2:])

	if *payer == "" || *due == "" {
		log.Fatal().Msg("Usage: cli create -payer ID -due YYYY-MM-DD [-amount N] [-category REF]")
	}
	dueDate, err := time.Parse(dateLayout, *due)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid due date")
	}
	in := payments.NewPayment{PayerSubjectID: *payer, CategoryRef: *category, DueDate: dueDate}
	if *amount != "" {
		if in.Amount, err = decimal.NewFromString(*amount); err != nil {
			log.Fatal().Err(err).Msg("Invalid amount")
		}
	}

	ctx, a := open(cfg, log, "")
	defer a.Close()
	rec, err := a.Service.CreatePayment(ctx, in)
	if err != nil {
		log.Fatal().Err(err).Msg("Create failed")
	}
	printPayment(rec)
}

func runSubmit(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	id := fs.String("id", "", "Payment ID")
	method := fs.String("method", "", "Payment method: cash, card or transfer")
	filePath := fs.String("file", "", "Voucher file (optional)")
	fs.Parse(os.Args[2:])

	if *id == "" || *method == "" {
		log.Fatal().Msg("Usage: cli submit -id ID -method METHOD [-file PATH]")
	}
	m, err := domain.ParseMethod(*method)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid method")
	}
	var file *voucher.File
	if *filePath != "" {
		data, err := os.ReadFile(*filePath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read file")
		}
		file = &voucher.File{Name: filepath.Base(*filePath), Data: data}
	}

	ctx, a := open(cfg, log, "")
	defer a.Close()
	rec, err := a.Service.SubmitPayment(ctx, *id, m, file)
	if err != nil {
		log.Fatal().Err(err).Msg("Submit failed")
	}
	printPayment(rec)
}

func runApprove(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("approve", flag.ExitOnError)
	id := fs.String("id", "", "Payment ID")
	as := fs.String("as", os.Getenv("USER_ID"), "Acting administrator ID (or set USER_ID env)")
	fs.Parse(os.Args[2:])

	if *id == "" {
		log.Fatal().Msg("Usage: cli approve -id ID -as ADMIN")
	}
	ctx, a := open(cfg, log, *as)
	defer a.Close()
	rec, err := a.Service.ApprovePayment(ctx, *id, "")
	if err != nil {
		log.Fatal().Err(err).Msg("Approve failed")
	}
	printPayment(rec)
}

func runReject(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("reject", flag.ExitOnError)
	id := fs.String("id", "", "Payment ID")
	reason := fs.String("reason", "", "Rejection reason")
	as := fs.String("as", os.Getenv("USER_ID"), "Acting administrator ID (or set USER_ID env)")
	fs.Parse(os.Args[2:])

	if *id == "" {
		log.Fatal().Msg("Usage: cli reject -id ID -reason TEXT -as ADMIN")
	}
	ctx, a := open(cfg, log, *as)
	defer a.Close()
	rec, err := a.Service.RejectPayment(ctx, *id, *reason)
	if err != nil {
		log.Fatal().Err(err).Msg("Reject failed")
	}
	printPayment(rec)
}

func runShow(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	id := fs.String("id", "", "Payment ID")
	fs.Parse(os.Args[2:])

	if *id == "" {
		log.Fatal().Msg("Error: -id is required")
	}
	ctx, a := open(cfg, log, "")
	defer a.Close()
	rec, err := a.Service.GetPayment(ctx, *id)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load payment")
	}
	printPayment(rec)
}

func runSweep(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	today := fs.String("today", "", "Date to evaluate against, YYYY-MM-DD (defaults to now)")
	fs.Parse(os.Args[2:])

	day := time.Now()
	if *today != "" {
		parsed, err := time.Parse(dateLayout, *today)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid date")
		}
		day = parsed
	}

	ctx, a := open(cfg, log, "")
	defer a.Close()
	updated, err := a.Service.RecomputeOverdue(ctx, day)
	if err != nil {
		log.Error().Err(err).Msg("Sweep finished with errors")
	}
	fmt.Printf("Updated %d payment(s) for %s.\n", updated, domain.DateOf(day).Format(dateLayout))
}

func runFetchArchive(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("fetch-archive", flag.ExitOnError)
	id := fs.String("id", "", "Payment ID")
	out := fs.String("out", "", "Output path (defaults to the archived file name)")
	fs.Parse(os.Args[2:])

	if *id == "" {
		log.Fatal().Msg("Usage: cli fetch-archive -id ID [-out PATH]")
	}
	ctx, a := open(cfg, log, "")
	defer a.Close()
	if a.Archive == nil {
		log.Fatal().Msg("GCS_BUCKET is not configured")
	}

	rec, err := a.Service.GetPayment(ctx, *id)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load payment")
	}
	if rec.Status.Approval() != domain.ApprovalApproved {
		log.Fatal().Stringer("status", rec.Status).Msg("Only approved vouchers are archived")
	}
	uri, err := a.Archive.Locate(rec)
	if err != nil {
		log.Fatal().Err(err).Msg("Payment has no voucher")
	}
	data, err := a.Archive.Fetch(ctx, uri)
	if err != nil {
		log.Fatal().Err(err).Str("gcs_uri", uri).Msg("Download failed")
	}

	path := *out
	if path == "" {
		path = gcsuploader.ExtractFilenameFromGCSURI(uri)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Fatal().Err(err).Msg("Failed to write file")
	}
	fmt.Printf("Downloaded %s to %s (%d bytes)\n", uri, path, len(data))
}

func runHistory(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	id := fs.String("id", "", "Payment ID")
	fs.Parse(os.Args[2:])

	if *id == "" {
		log.Fatal().Msg("Error: -id is required")
	}
	ctx, a := open(cfg, log, "")
	defer a.Close()
	if a.AuditSink == nil {
		log.Fatal().Msg("BQ_PROJECT is not configured")
	}

	events, err := a.AuditSink.ListPaymentEvents(ctx, *id)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to query audit events")
	}
	fmt.Printf("\n=== Audit events (%d) ===\n", len(events))
	for i, ev := range events {
		fmt.Printf("\n%d. %s  %s -> %s\n", i+1, ev.Transition, ev.From, ev.To)
		fmt.Printf("   At:    %s\n", ev.At.Format(time.RFC3339))
		if ev.Actor != "" {
			fmt.Printf("   Actor: %s\n", ev.Actor)
		}
		if ev.Reason != "" {
			fmt.Printf("   Reason: %s\n", ev.Reason)
		}
	}
	fmt.Println()
}

func printPayment(rec *domain.PaymentRecord) {
	fmt.Println("\n=== Payment ===")
	fmt.Printf("ID:       %s\n", rec.ID)
	fmt.Printf("Payer:    %s\n", rec.PayerSubjectID)
	fmt.Printf("Amount:   %s\n", rec.Amount.StringFixed(2))
	if rec.CategoryRef != "" {
		fmt.Printf("Category: %s\n", rec.CategoryRef)
	}
	fmt.Printf("Due:      %s\n", rec.DueDate.Format(dateLayout))
	fmt.Printf("Status:   %s\n", rec.Status)
	if sub := rec.Submission; sub != nil {
		fmt.Printf("Method:   %s\n", sub.Method)
		if sub.PaidDate != nil {
			fmt.Printf("Paid:     %s\n", sub.PaidDate.Format(time.RFC3339))
		}
	}
	if att := rec.Attachment; att != nil {
		fmt.Printf("Voucher:  %s (%d -> %d bytes, compressed=%v)\n", att.FileName, att.OriginalByteSize, att.FinalByteSize, att.WasCompressed)
	}
	if rec.ApprovedBy != "" {
		fmt.Printf("Approved: by %s at %s\n", rec.ApprovedBy, rec.ApprovedDate.Format(time.RFC3339))
	}
	if rec.RejectionReason != "" {
		fmt.Printf("Rejected: %q by %s\n", rec.RejectionReason, rec.RejectedBy)
	}
	for i, rj := range rec.RejectionHistory {
		fmt.Printf("  #%d %s: %q (%s)\n", i+1, rj.RejectedAt.Format(dateLayout), rj.Reason, rj.Method)
	}
	fmt.Println()
}
