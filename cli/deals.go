// ABOUTME: Deal CLI commands
// ABOUTME: Human-friendly commands for managing deals, stages, milestones and activities
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/closer/models"
	"github.com/harperreed/closer/pipeline"
	"github.com/shopspring/decimal"
)

// stdout is where commands print; tests swap it for a buffer.
var stdout io.Writer = os.Stdout

// AddDealCommand adds a new deal.
func AddDealCommand(svc *pipeline.Service, owner string, args []string) error {
	fs := flag.NewFlagSet("add-deal", flag.ExitOnError)
	dealType := fs.String("type", "", "Deal type ID (required, see deal-types)")
	client := fs.String("client", "", "Client ID (required)")
	title := fs.String("title", "", "Deal title (required)")
	value := fs.String("value", "0", "Deal value, e.g. 425000")
	rate := fs.String("rate", "", "Commission percent (default: deal type's rate)")
	split := fs.String("split", "", "Agent split percent (default: none)")
	closeDate := fs.String("close", "", "Expected close date (YYYY-MM-DD)")
	assignee := fs.String("assign", "", "Assigned agent")
	notes := fs.String("notes", "", "Notes")
	_ = fs.Parse(args)

	if *dealType == "" {
		return fmt.Errorf("--type is required")
	}

	in := pipeline.CreateDealInput{
		DealTypeID: *dealType,
		ClientID:   *client,
		Title:      *title,
		AssignedTo: *assignee,
		Notes:      *notes,
	}

	var err error
	if in.DealValue, err = decimal.NewFromString(*value); err != nil {
		return fmt.Errorf("invalid --value: %w", err)
	}
	if *rate != "" {
		r, err := decimal.NewFromString(*rate)
		if err != nil {
			return fmt.Errorf("invalid --rate: %w", err)
		}
		in.CommissionRate = &r
	}
	if *split != "" {
		s, err := decimal.NewFromString(*split)
		if err != nil {
			return fmt.Errorf("invalid --split: %w", err)
		}
		in.CommissionSplitPercent = decimal.NewNullDecimal(s)
	}
	if *closeDate != "" {
		d, err := models.ParseDate(*closeDate)
		if err != nil {
			return fmt.Errorf("invalid --close: %w", err)
		}
		in.ExpectedCloseDate = &d
	}

	deal, err := svc.CreateDeal(context.Background(), owner, in)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "✓ Deal created: %s (ID: %s)\n", deal.Title, deal.ID)
	fmt.Fprintf(stdout, "  Stage: %s\n", deal.CurrentStage)
	fmt.Fprintf(stdout, "  Value: $%s\n", deal.DealValue.StringFixed(2))
	fmt.Fprintf(stdout, "  Commission: $%s (agent $%s)\n", deal.CommissionAmount.StringFixed(2), deal.AgentCommission.StringFixed(2))
	return nil
}

// ListDealsCommand lists deals with optional filters.
func ListDealsCommand(svc *pipeline.Service, owner string, args []string) error {
	fs := flag.NewFlagSet("list-deals", flag.ExitOnError)
	dealType := fs.String("type", "", "Filter by deal type")
	stage := fs.String("stage", "", "Filter by stage")
	status := fs.String("status", "", "Filter by status (active, closed_won, closed_lost)")
	client := fs.String("client", "", "Filter by client ID")
	limit := fs.Int("limit", 50, "Maximum results")
	offset := fs.Int("offset", 0, "Skip this many deals")
	_ = fs.Parse(args)

	list, err := svc.ListDeals(context.Background(), owner, pipeline.ListDealsInput{
		DealTypeID: *dealType,
		Stage:      *stage,
		Status:     *status,
		ClientID:   *client,
		Limit:      *limit,
		Offset:     *offset,
	})
	if err != nil {
		return err
	}

	if len(list.Deals) == 0 {
		fmt.Fprintln(stdout, "No deals found")
		return nil
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TITLE\tTYPE\tSTAGE\tVALUE\tCOMMISSION\tID")
	_, _ = fmt.Fprintln(w, "-----\t----\t-----\t-----\t----------\t--")

	total := decimal.Zero
	for _, deal := range list.Deals {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t$%s\t$%s\t%s\n",
			deal.Title, deal.DealTypeID, deal.CurrentStage,
			deal.DealValue.StringFixed(2), deal.AgentCommission.StringFixed(2), deal.ID)
		total = total.Add(deal.DealValue)
	}
	_ = w.Flush()

	fmt.Fprintf(stdout, "\nShowing %d of %d deal(s) - $%s\n", len(list.Deals), list.Total, total.StringFixed(2))
	return nil
}

// ShowDealCommand prints a deal with its milestones and activity trail.
func ShowDealCommand(svc *pipeline.Service, owner string, args []string) error {
	dealID, err := parseArgID("show-deal <id>", args)
	if err != nil {
		return err
	}

	ctx := context.Background()
	deal, err := svc.GetDeal(ctx, owner, dealID)
	if err != nil {
		return err
	}
	milestones, err := svc.ListMilestones(ctx, owner, dealID)
	if err != nil {
		return err
	}
	acts, err := svc.ListActivities(ctx, owner, dealID)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%s\n", deal.Title)
	fmt.Fprintf(stdout, "  ID:         %s\n", deal.ID)
	fmt.Fprintf(stdout, "  Type:       %s\n", deal.DealTypeID)
	fmt.Fprintf(stdout, "  Client:     %s\n", deal.ClientID)
	fmt.Fprintf(stdout, "  Stage:      %s (%s)\n", deal.CurrentStage, deal.Status)
	fmt.Fprintf(stdout, "  Value:      $%s\n", deal.DealValue.StringFixed(2))
	fmt.Fprintf(stdout, "  Commission: %s%% = $%s (agent $%s)\n",
		deal.CommissionRate, deal.CommissionAmount.StringFixed(2), deal.AgentCommission.StringFixed(2))
	if deal.ExpectedCloseDate != nil {
		fmt.Fprintf(stdout, "  Expected:   %s\n", deal.ExpectedCloseDate.Format(time.DateOnly))
	}
	if deal.ActualCloseDate != nil {
		fmt.Fprintf(stdout, "  Closed:     %s\n", deal.ActualCloseDate.Format(time.DateOnly))
	}
	if deal.LostReason != nil {
		fmt.Fprintf(stdout, "  Lost:       %s\n", *deal.LostReason)
	}

	if len(milestones) > 0 {
		fmt.Fprintln(stdout, "\nMILESTONES")
		w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		for _, m := range milestones {
			_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", m.ScheduledDate.Format(time.DateOnly), m.Name, m.Status, m.ID)
		}
		_ = w.Flush()
	}

	fmt.Fprintln(stdout, "\nACTIVITY")
	for _, act := range acts {
		fmt.Fprintf(stdout, "  %s  [%s] %s\n", act.CreatedAt.Local().Format("2006-01-02 15:04"), act.Type, act.Title)
	}
	return nil
}

// UpdateDealCommand edits deal fields. Only flags that are set are changed.
func UpdateDealCommand(svc *pipeline.Service, owner string, args []string) error {
	fs := flag.NewFlagSet("update-deal", flag.ExitOnError)
	title := fs.String("title", "", "New title")
	client := fs.String("client", "", "New client ID")
	assignee := fs.String("assign", "", "New assignee")
	notes := fs.String("notes", "", "Replacement notes")
	value := fs.String("value", "", "New deal value")
	rate := fs.String("rate", "", "New commission percent")
	split := fs.String("split", "", "New agent split percent (\"none\" removes it)")
	closeDate := fs.String("close", "", "New expected close date (\"none\" clears it)")
	closedOn := fs.String("closed-on", "", "Actual close date")
	reason := fs.String("reason", "", "Replacement lost reason")
	_ = fs.Parse(args)

	dealID, err := parseArgID("update-deal [flags] <id>", fs.Args())
	if err != nil {
		return err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var in pipeline.UpdateDealInput
	if set["title"] {
		in.Title = title
	}
	if set["client"] {
		in.ClientID = client
	}
	if set["assign"] {
		in.AssignedTo = assignee
	}
	if set["notes"] {
		in.Notes = notes
	}
	if set["reason"] {
		in.LostReason = reason
	}
	if set["value"] {
		v, err := decimal.NewFromString(*value)
		if err != nil {
			return fmt.Errorf("invalid --value: %w", err)
		}
		in.DealValue = &v
	}
	if set["rate"] {
		r, err := decimal.NewFromString(*rate)
		if err != nil {
			return fmt.Errorf("invalid --rate: %w", err)
		}
		in.CommissionRate = &r
	}
	if set["split"] {
		s := decimal.NullDecimal{}
		if *split != "none" {
			d, err := decimal.NewFromString(*split)
			if err != nil {
				return fmt.Errorf("invalid --split: %w", err)
			}
			s = decimal.NewNullDecimal(d)
		}
		in.CommissionSplitPercent = &s
	}
	if set["close"] {
		if *closeDate == "none" {
			in.ClearExpectedCloseDate = true
		} else {
			d, err := models.ParseDate(*closeDate)
			if err != nil {
				return fmt.Errorf("invalid --close: %w", err)
			}
			in.ExpectedCloseDate = &d
		}
	}
	if set["closed-on"] {
		d, err := models.ParseDate(*closedOn)
		if err != nil {
			return fmt.Errorf("invalid --closed-on: %w", err)
		}
		in.ActualCloseDate = &d
	}

	deal, err := svc.UpdateDeal(context.Background(), owner, dealID, in)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "✓ Updated deal: %s (version %d)\n", deal.Title, deal.Version)
	return nil
}

// DeleteDealCommand deletes a deal.
func DeleteDealCommand(svc *pipeline.Service, owner string, args []string) error {
	fs := flag.NewFlagSet("delete-deal", flag.ExitOnError)
	_ = fs.Parse(args)

	dealID, err := parseArgID("delete-deal <id>", fs.Args())
	if err != nil {
		return err
	}

	if err := svc.DeleteDeal(context.Background(), owner, dealID); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "✓ Deleted deal: %s\n", dealID)
	return nil
}

// MoveDealCommand moves a deal to another stage of its pipeline.
func MoveDealCommand(svc *pipeline.Service, owner string, args []string) error {
	fs := flag.NewFlagSet("move-deal", flag.ExitOnError)
	reason := fs.String("reason", "", "Lost reason (required for lost stages)")
	_ = fs.Parse(args)

	if fs.NArg() != 2 {
		return fmt.Errorf("usage: move-deal [--reason text] <id> <stage>")
	}
	dealID, err := uuid.Parse(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("invalid deal ID: %w", err)
	}

	result, err := svc.ChangeStage(context.Background(), owner, dealID, fs.Arg(1), *reason)
	if err != nil {
		return err
	}

	if !result.Changed {
		fmt.Fprintf(stdout, "Deal already at %s\n", result.Deal.CurrentStage)
	} else {
		fmt.Fprintf(stdout, "✓ %s moved to %s (%s)\n", result.Deal.Title, result.Deal.CurrentStage, result.Deal.Status)
	}
	if result.MilestonesCreated > 0 {
		fmt.Fprintf(stdout, "  %d milestones scheduled\n", result.MilestonesCreated)
	}
	return nil
}

// LoseDealCommand marks a deal lost.
func LoseDealCommand(svc *pipeline.Service, owner string, args []string) error {
	fs := flag.NewFlagSet("lose-deal", flag.ExitOnError)
	reason := fs.String("reason", "", "Why the deal was lost (required, 10+ characters)")
	_ = fs.Parse(args)

	dealID, err := parseArgID("lose-deal --reason text <id>", fs.Args())
	if err != nil {
		return err
	}

	deal, err := svc.MarkLost(context.Background(), owner, dealID, *reason)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "✓ %s marked lost\n", deal.Title)
	return nil
}

// LogActivityCommand records a call, showing, note or other activity.
func LogActivityCommand(svc *pipeline.Service, owner string, args []string) error {
	fs := flag.NewFlagSet("log-activity", flag.ExitOnError)
	kind := fs.String("type", string(models.ActivityNote), "Activity type (note, call, email, meeting, showing, document_upload, document_delete, other)")
	title := fs.String("title", "", "Summary (required)")
	description := fs.String("description", "", "Details")
	_ = fs.Parse(args)

	dealID, err := parseArgID("log-activity [flags] <deal-id>", fs.Args())
	if err != nil {
		return err
	}

	act, err := svc.CreateActivity(context.Background(), owner, dealID, pipeline.CreateActivityInput{
		Type:        models.ActivityType(*kind),
		Title:       *title,
		Description: *description,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "✓ Logged %s: %s\n", act.Type, act.Title)
	return nil
}

// AddMilestoneCommand adds a manual milestone to a deal.
func AddMilestoneCommand(svc *pipeline.Service, owner string, args []string) error {
	fs := flag.NewFlagSet("add-milestone", flag.ExitOnError)
	name := fs.String("name", "", "Milestone name (required)")
	kind := fs.String("type", "", "Milestone type (default custom)")
	date := fs.String("date", "", "Scheduled date YYYY-MM-DD (required)")
	_ = fs.Parse(args)

	dealID, err := parseArgID("add-milestone [flags] <deal-id>", fs.Args())
	if err != nil {
		return err
	}
	scheduled, err := models.ParseDate(*date)
	if err != nil {
		return fmt.Errorf("invalid --date: %w", err)
	}

	m, err := svc.CreateMilestone(context.Background(), owner, dealID, pipeline.CreateMilestoneInput{
		MilestoneType: *kind,
		Name:          *name,
		ScheduledDate: scheduled,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "✓ Milestone added: %s on %s (ID: %s)\n", m.Name, m.ScheduledDate.Format(time.DateOnly), m.ID)
	return nil
}

// SetMilestoneCommand changes a milestone's status.
func SetMilestoneCommand(svc *pipeline.Service, owner string, args []string) error {
	fs := flag.NewFlagSet("set-milestone", flag.ExitOnError)
	status := fs.String("status", string(models.MilestoneStatusCompleted), "New status (pending, completed, cancelled)")
	_ = fs.Parse(args)

	if fs.NArg() != 2 {
		return fmt.Errorf("usage: set-milestone [--status s] <deal-id> <milestone-id>")
	}
	dealID, err := uuid.Parse(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("invalid deal ID: %w", err)
	}
	milestoneID, err := uuid.Parse(fs.Arg(1))
	if err != nil {
		return fmt.Errorf("invalid milestone ID: %w", err)
	}

	st := models.MilestoneStatus(*status)
	m, err := svc.UpdateMilestone(context.Background(), owner, dealID, milestoneID, pipeline.UpdateMilestoneInput{Status: &st})
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "✓ %s is %s\n", m.Name, m.Status)
	return nil
}

// DealTypesCommand lists the configured deal types and their stages.
func DealTypesCommand(svc *pipeline.Service, owner string, args []string) error {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tRATE\tSTAGES")
	_, _ = fmt.Fprintln(w, "--\t----\t----\t------")
	for _, dt := range svc.DealTypes() {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s%%\t%s\n", dt.ID, dt.Name, dt.DefaultCommissionRate, strings.Join(dt.StageCodes(), " → "))
	}
	return w.Flush()
}

func parseArgID(usage string, args []string) (uuid.UUID, error) {
	if len(args) != 1 {
		return uuid.Nil, fmt.Errorf("usage: %s", usage)
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid ID: %w", err)
	}
	return id, nil
}
