package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"billsync/internal/config"
	"billsync/internal/invoice"
	"billsync/internal/project"
	"billsync/internal/runstore"
	"billsync/internal/services"
	"billsync/internal/services/notion"
	"billsync/internal/submission"
)

// SourceClient is the project database surface the pipeline reads.
type SourceClient interface {
	QueryDocuments(ctx context.Context, query notion.Query) ([]notion.Document, error)
	RetrievePage(ctx context.Context, pageID string) (notion.Document, error)
	SetCheckbox(ctx context.Context, pageID, property string, value bool) error
}

// Submitter pushes one invoice through the billing service.
type Submitter interface {
	Submit(ctx context.Context, inv invoice.Invoice) submission.Result
}

// RunLedger persists run history. Optional; a nil ledger disables
// persistence without changing pipeline behavior.
type RunLedger interface {
	BeginRun(ctx context.Context, dryRun bool) (string, error)
	FinishRun(ctx context.Context, runID string, run runstore.Run, outcomes []runstore.Outcome) error
}

// RunOptions selects which projects a run processes.
type RunOptions struct {
	// Status restricts the run to projects in the given state. Empty
	// means completed, the only state that is ready to bill.
	Status project.Status
	// Limit caps how many records are fetched. Zero means no cap.
	Limit int
	// DryRun builds invoices and reports them without submitting.
	DryRun bool
	// IssueDate is stamped on built invoices. Zero means today.
	IssueDate time.Time
}

// Orchestrator runs the full fetch, normalize, price, map, submit
// pipeline. One malformed record never blocks its siblings; only auth
// and source-availability failures abort a run.
type Orchestrator struct {
	cfg        *config.Config
	source     SourceClient
	submitter  Submitter
	ledger     RunLedger
	logger     *slog.Logger
	normalizer *project.Normalizer
	calculator invoice.Calculator
	mapper     invoice.Mapper
}

// New assembles an orchestrator from configuration and collaborators.
func New(cfg *config.Config, source SourceClient, submitter Submitter, ledger RunLedger, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:        cfg,
		source:     source,
		submitter:  submitter,
		ledger:     ledger,
		logger:     logger,
		normalizer: project.NewNormalizer(),
		calculator: invoice.NewCalculator(invoice.MismatchPolicy(cfg.Billing.MismatchPolicy)),
		mapper:     invoice.NewMapper(cfg.Billing.DueTermDays, cfg.Billing.TaxRatePercent, cfg.Billing.Currency),
	}
}

// Run executes one pipeline pass and returns the report. The report is
// valid even when err is non-nil; err signals a run-fatal condition.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	status := opts.Status
	if status == "" {
		status = project.StatusCompleted
	}
	issueDate := opts.IssueDate
	if issueDate.IsZero() {
		issueDate = time.Now()
	}

	runID := ""
	if o.ledger != nil {
		id, err := o.ledger.BeginRun(ctx, opts.DryRun)
		if err != nil {
			o.logger.Warn("failed to record run start", slog.String("error", err.Error()))
		} else {
			runID = id
		}
	}

	docs, err := o.fetch(ctx, status, opts.Limit)
	if err != nil {
		report := NewRunReport(runID, opts.DryRun, 0)
		o.persist(ctx, report, err)
		return report, err
	}

	report := NewRunReport(runID, opts.DryRun, len(docs))
	o.logger.Info("fetched source records",
		slog.Int("count", len(docs)),
		slog.String("status", string(status)))

	priced := o.normalizeAndPrice(docs, report)

	if err := o.resolveCustomers(ctx, priced); err != nil {
		o.persist(ctx, report, err)
		return report, err
	}

	invoices, failures := o.mapper.BuildInvoices(issueDate, priced)
	for _, failure := range failures {
		var mappingErr *invoice.MappingError
		if errors.As(failure.Err, &mappingErr) {
			for _, id := range mappingErr.ProjectIDs {
				report.Record(Outcome{
					ProjectID: id,
					Kind:      OutcomeFailed,
					Detail:    fmt.Sprintf("%s: %s", services.Kind(failure.Err), mappingErr.Reason),
				})
			}
			continue
		}
		o.logger.Error("invoice build failure without project attribution",
			slog.String("error", failure.Err.Error()))
	}

	var fatalErr error
	if opts.DryRun {
		o.recordDryRun(invoices, priced, report)
	} else {
		fatalErr = o.submitAll(ctx, invoices, priced, report)
	}

	o.persist(ctx, report, fatalErr)
	return report, fatalErr
}

func (o *Orchestrator) fetch(ctx context.Context, status project.Status, limit int) ([]notion.Document, error) {
	query := notion.Query{
		Filters: []notion.Filter{{Property: project.PropStatus, StatusEquals: status.Label()}},
		Limit:   limit,
	}
	return o.source.QueryDocuments(ctx, query)
}

// normalizeAndPrice turns documents into priced projects, recording a
// record-local failure for each document that cannot make the cut.
func (o *Orchestrator) normalizeAndPrice(docs []notion.Document, report *RunReport) []invoice.Priced {
	priced := make([]invoice.Priced, 0, len(docs))
	for _, doc := range docs {
		record, err := o.normalizer.Normalize(doc)
		if err != nil {
			title, _ := doc.Title(project.PropTitle)
			report.Record(Outcome{
				ProjectID:    doc.ID,
				ProjectTitle: title,
				Kind:         OutcomeFailed,
				Detail:       fmt.Sprintf("%s: %v", services.Kind(err), err),
			})
			continue
		}
		if record.Invoiced {
			report.Record(Outcome{
				ProjectID:    record.ID,
				ProjectTitle: record.Title,
				Kind:         OutcomeSkipped,
				Detail:       "already invoiced",
			})
			continue
		}
		amounts, err := o.calculator.Compute(record)
		if err != nil {
			report.Record(Outcome{
				ProjectID:    record.ID,
				ProjectTitle: record.Title,
				Kind:         OutcomeFailed,
				Detail:       fmt.Sprintf("%s: %v", services.Kind(err), err),
			})
			continue
		}
		if amounts.Warning != "" {
			o.logger.Warn("amount mismatch",
				slog.String("project_id", record.ID),
				slog.String("title", record.Title),
				slog.String("detail", amounts.Warning))
		}
		priced = append(priced, invoice.Priced{Project: record, Amounts: amounts})
	}
	return priced
}

// resolveCustomers fills in customer names via the source database,
// caching lookups so a customer shared by many projects costs one call.
func (o *Orchestrator) resolveCustomers(ctx context.Context, priced []invoice.Priced) error {
	names := make(map[string]string)
	for i := range priced {
		customerID := priced[i].Project.Customer.ID
		if customerID == "" {
			continue
		}
		name, cached := names[customerID]
		if !cached {
			doc, err := o.source.RetrievePage(ctx, customerID)
			if err != nil {
				return err
			}
			name, _ = doc.FirstTitle()
			names[customerID] = name
		}
		priced[i].Project.Customer.Name = name
	}
	return nil
}

func (o *Orchestrator) recordDryRun(invoices []invoice.Invoice, priced []invoice.Priced, report *RunReport) {
	index := buildProjectIndex(priced)
	for _, inv := range invoices {
		detail := fmt.Sprintf("dry run: would bill %s %d %s", inv.Customer.Name, inv.TotalAmount(), inv.Currency)
		for _, id := range inv.ProjectIDs() {
			report.Record(Outcome{
				ProjectID:    id,
				ProjectTitle: index.titles[id],
				Kind:         OutcomeSuccess,
				Detail:       withWarning(detail, index.warnings[id]),
			})
		}
	}
}

// submitAll pushes invoices through a bounded worker pool. An auth
// failure stops new dispatches and aborts the run; other failures stay
// local to their invoice.
func (o *Orchestrator) submitAll(ctx context.Context, invoices []invoice.Invoice, priced []invoice.Priced, report *RunReport) error {
	concurrency := o.cfg.Submission.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	index := buildProjectIndex(priced)

	var (
		wg       sync.WaitGroup
		sem      = make(chan struct{}, concurrency)
		fatalMu  sync.Mutex
		fatalErr error
	)
	setFatal := func(err error) {
		fatalMu.Lock()
		if fatalErr == nil {
			fatalErr = err
		}
		fatalMu.Unlock()
	}
	aborted := func() bool {
		fatalMu.Lock()
		defer fatalMu.Unlock()
		return fatalErr != nil
	}

	for _, inv := range invoices {
		if ctx.Err() != nil {
			setFatal(services.Wrap(services.ErrTransient, "pipeline", "submit", "run cancelled", ctx.Err()))
			break
		}
		if aborted() {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(inv invoice.Invoice) {
			defer wg.Done()
			defer func() { <-sem }()

			result := o.submitter.Submit(ctx, inv)
			o.recordSubmission(ctx, inv, result, index, report)
			if result.Err != nil && errors.Is(result.Err, services.ErrAuth) {
				setFatal(result.Err)
			}
		}(inv)
	}
	wg.Wait()

	fatalMu.Lock()
	defer fatalMu.Unlock()
	return fatalErr
}

func (o *Orchestrator) recordSubmission(ctx context.Context, inv invoice.Invoice, result submission.Result, index projectIndex, report *RunReport) {
	if result.State == submission.StateConfirmed {
		action := "created"
		if result.Updated {
			action = "updated"
		}
		o.logger.Info("invoice submitted",
			slog.String("correlation_key", inv.CorrelationKey),
			slog.String("remote_id", result.RemoteID),
			slog.String("action", action))
		for _, id := range inv.ProjectIDs() {
			report.Record(Outcome{
				ProjectID:    id,
				ProjectTitle: index.titles[id],
				Kind:         OutcomeSuccess,
				Detail:       withWarning("invoice "+action, index.warnings[id]),
				InvoiceID:    result.RemoteID,
				Attempts:     result.Attempts,
			})
			o.markInvoiced(ctx, index.pages[id])
		}
		return
	}

	detail := "submission failed"
	if result.Err != nil {
		detail = fmt.Sprintf("%s: %v", services.Kind(result.Err), result.Err)
	}
	o.logger.Warn("invoice submission failed",
		slog.String("correlation_key", inv.CorrelationKey),
		slog.Int("attempts", result.Attempts),
		slog.String("detail", detail))
	for _, id := range inv.ProjectIDs() {
		report.Record(Outcome{
			ProjectID:    id,
			ProjectTitle: index.titles[id],
			Kind:         OutcomeFailed,
			Detail:       detail,
			Attempts:     result.Attempts,
		})
	}
}

// markInvoiced flips the source checkbox after a confirmed submission.
// Best effort: a failure here is logged, never fatal, because the
// billing already exists and the next run will update it in place.
func (o *Orchestrator) markInvoiced(ctx context.Context, pageID string) {
	if !o.cfg.Notion.MarkInvoiced || pageID == "" {
		return
	}
	if err := o.source.SetCheckbox(ctx, pageID, project.PropInvoiced, true); err != nil {
		o.logger.Warn("failed to mark source record invoiced",
			slog.String("page_id", pageID),
			slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) persist(ctx context.Context, report *RunReport, runErr error) {
	if o.ledger == nil || report.RunID == "" {
		return
	}
	success, skipped, failed := report.Counts()
	run := runstore.Run{
		DryRun:       report.DryRun,
		FetchedCount: report.FetchedCount,
		SuccessCount: success,
		SkippedCount: skipped,
		FailedCount:  failed,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	outcomes := make([]runstore.Outcome, 0, len(report.Outcomes()))
	for _, outcome := range report.Outcomes() {
		outcomes = append(outcomes, runstore.Outcome{
			ProjectID:    outcome.ProjectID,
			ProjectTitle: outcome.ProjectTitle,
			Kind:         string(outcome.Kind),
			Detail:       outcome.Detail,
			InvoiceID:    outcome.InvoiceID,
			Attempts:     outcome.Attempts,
		})
	}
	if err := o.ledger.FinishRun(ctx, report.RunID, run, outcomes); err != nil {
		o.logger.Warn("failed to persist run", slog.String("error", err.Error()))
	}
}

// projectIndex carries per-project lookups the submission recorder
// needs: display titles, source page IDs for the checkbox writeback,
// and calculator warnings that must surface in the report. Page IDs
// equal project IDs today; the indirection keeps checkbox writes
// addressed by page identity rather than domain identity.
type projectIndex struct {
	titles   map[string]string
	pages    map[string]string
	warnings map[string]string
}

func buildProjectIndex(priced []invoice.Priced) projectIndex {
	index := projectIndex{
		titles:   make(map[string]string, len(priced)),
		pages:    make(map[string]string, len(priced)),
		warnings: make(map[string]string),
	}
	for _, p := range priced {
		index.titles[p.Project.ID] = p.Project.Title
		index.pages[p.Project.ID] = p.Project.ID
		if p.Amounts.Warning != "" {
			index.warnings[p.Project.ID] = p.Amounts.Warning
		}
	}
	return index
}

func withWarning(detail, warning string) string {
	if warning == "" {
		return detail
	}
	return detail + "; warning: " + warning
}
