package cli

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gmsas95/medtracker/internal/calendar"
	"github.com/gmsas95/medtracker/internal/config"
	"github.com/gmsas95/medtracker/internal/schedule"
	"github.com/gmsas95/medtracker/internal/tracker"
)

var Version = "dev"

// ErrUsage is returned for bad command lines; help has been printed.
var ErrUsage = errors.New("usage error")

// Commands runs the record and schedule commands against a service.
type Commands struct {
	Service *tracker.Service
	Config  *config.Config
	Out     *Printer
	Stderr  io.Writer
}

func New(svc *tracker.Service, cfg *config.Config, out *Printer, stderr io.Writer) *Commands {
	if stderr == nil {
		stderr = os.Stderr
	}
	return &Commands{Service: svc, Config: cfg, Out: out, Stderr: stderr}
}

// Run dispatches one command. serve and version are handled by main.
func (c *Commands) Run(ctx context.Context, name string, args []string) error {
	switch name {
	case "list", "ls":
		return c.List(ctx)
	case "add":
		return c.Add(ctx, args)
	case "update", "edit":
		return c.Update(ctx, args)
	case "delete", "rm":
		return c.Delete(ctx, args)
	case "take":
		return c.Take(ctx, args)
	case "untake":
		return c.Untake(ctx, args)
	case "today", "agenda":
		return c.Today(ctx, args)
	case "upcoming":
		return c.Upcoming(ctx, args)
	case "week":
		return c.Week(ctx)
	case "adherence":
		return c.Adherence(ctx, args)
	case "reminders":
		return c.Reminders(ctx, args)
	case "sync":
		return c.Sync(ctx, args)
	case "import":
		return c.Import(ctx, args)
	case "export-ics":
		return c.ExportICS(ctx, args)
	case "status":
		return c.Status()
	default:
		PrintHelp(c.Stderr)
		return ErrUsage
	}
}

func (c *Commands) newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.Stderr)
	fs.Usage = func() {
		fmt.Fprintf(c.Stderr, "Usage: medtracker %s %s\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}

func (c *Commands) List(ctx context.Context) error {
	meds, err := c.Service.List(ctx)
	if err != nil {
		return err
	}
	if len(meds) == 0 {
		c.Out.Line("No medications yet. Add one with: medtracker add --name <name> --days mon,wed --times 08:00")
		return nil
	}
	c.Out.Title(fmt.Sprintf("Medications (%d)", len(meds)))
	for i := range meds {
		c.Out.Medication(&meds[i])
	}
	return nil
}

func (c *Commands) Add(ctx context.Context, args []string) error {
	fs := c.newFlagSet("add", "[flags] [\"<name> <dosage> <days> <times>\"]")
	name := fs.String("name", "", "medication name")
	dosage := fs.String("dosage", "", "dosage, e.g. 10mg")
	notes := fs.String("notes", "", "free-form notes")
	days := fs.String("days", "", "days: mon,wed | 1,3 | daily | weekdays")
	times := fs.String("times", "", "comma separated HH:MM times")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}

	var in tracker.NewMedication
	if fs.NArg() > 0 {
		parsed, err := ParsePhrase(strings.Join(fs.Args(), " "))
		if err != nil {
			return err
		}
		in = parsed
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["name"] {
		in.Name = *name
	}
	if set["dosage"] {
		in.Dosage = *dosage
	}
	if set["notes"] {
		in.Notes = *notes
	}
	if set["days"] {
		dayList, err := parseDays(*days)
		if err != nil {
			return err
		}
		in.Days = dayList
	}
	if set["times"] {
		in.Times = splitTimes(*times)
	}

	med, err := c.Service.Create(ctx, in)
	if med != nil {
		c.Out.Line("Added %s", med.Name)
		c.Out.Medication(med)
	}
	if err != nil && med != nil {
		return fmt.Errorf("medication saved but reminders are incomplete, run 'medtracker sync %s': %w", med.ID, err)
	}
	return err
}

func (c *Commands) Update(ctx context.Context, args []string) error {
	id, rest, err := c.requireID("update", args)
	if err != nil {
		return err
	}
	fs := c.newFlagSet("update", "<id> [--name] [--dosage] [--notes] [--days] [--times]")
	name := fs.String("name", "", "medication name")
	dosage := fs.String("dosage", "", "dosage")
	notes := fs.String("notes", "", "notes")
	days := fs.String("days", "", "days")
	times := fs.String("times", "", "comma separated HH:MM times")
	if err := fs.Parse(rest); err != nil {
		return ErrUsage
	}

	var patch schedule.Patch
	var parseErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			patch.Name = name
		case "dosage":
			patch.Dosage = dosage
		case "notes":
			patch.Notes = notes
		case "days":
			d, err := parseDays(*days)
			if err != nil {
				parseErr = err
				return
			}
			patch.Days = &d
		case "times":
			t := splitTimes(*times)
			patch.Times = &t
		}
	})
	if parseErr != nil {
		return parseErr
	}
	if patch.IsEmpty() {
		fs.Usage()
		return ErrUsage
	}

	med, err := c.Service.Update(ctx, id, patch)
	if med != nil {
		c.Out.Line("Updated %s", med.Name)
		c.Out.Medication(med)
	}
	return err
}

func (c *Commands) Delete(ctx context.Context, args []string) error {
	id, _, err := c.requireID("delete", args)
	if err != nil {
		return err
	}
	if err := c.Service.Delete(ctx, id); err != nil {
		return err
	}
	c.Out.Line("Deleted %s", id)
	return nil
}

func (c *Commands) Take(ctx context.Context, args []string) error {
	id, key, err := c.doseArgs("take", args)
	if err != nil {
		return err
	}
	med, err := c.Service.MarkTaken(ctx, id, key)
	if err != nil {
		return err
	}
	c.Out.Line("Marked %s taken at %s %s", med.Name, key.Date, key.Time)
	return nil
}

func (c *Commands) Untake(ctx context.Context, args []string) error {
	id, key, err := c.doseArgs("untake", args)
	if err != nil {
		return err
	}
	med, err := c.Service.Unmark(ctx, id, key)
	if err != nil {
		return err
	}
	c.Out.Line("Unmarked %s at %s %s", med.Name, key.Date, key.Time)
	return nil
}

// doseArgs reads "<id> <YYYY-MM-DDTHH:MM|HH:MM>"; a bare time means today.
func (c *Commands) doseArgs(name string, args []string) (string, schedule.OccurrenceKey, error) {
	if len(args) < 2 {
		fmt.Fprintf(c.Stderr, "Usage: medtracker %s <id> <YYYY-MM-DDTHH:MM|HH:MM>\n", name)
		return "", schedule.OccurrenceKey{}, ErrUsage
	}
	id, raw := args[0], args[1]
	if t, err := schedule.ParseClockTime(raw); err == nil {
		return id, schedule.NewOccurrenceKey(schedule.DateOf(c.Service.Now()), t), nil
	}
	key, err := schedule.ParseOccurrenceKey(raw)
	if err != nil {
		return "", schedule.OccurrenceKey{}, fmt.Errorf("invalid dose %q, want YYYY-MM-DDTHH:MM or HH:MM", raw)
	}
	return id, key, nil
}

func (c *Commands) Today(ctx context.Context, args []string) error {
	fs := c.newFlagSet("today", "[--date YYYY-MM-DD]")
	dateFlag := fs.String("date", "", "show another date")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}
	date := schedule.DateOf(c.Service.Now())
	if *dateFlag != "" {
		d, err := schedule.ParseDate(*dateFlag)
		if err != nil {
			return fmt.Errorf("invalid date %q", *dateFlag)
		}
		date = d
	}

	items, err := c.Service.Agenda(ctx, date)
	if err != nil {
		return err
	}
	c.Out.Title(fmt.Sprintf("%s %s", date.Weekday(), date))
	if len(items) == 0 {
		c.Out.Muted("No doses scheduled.")
		return nil
	}
	for _, it := range items {
		c.Out.Line("%s  %s  %s", it.Dose.Time, c.Out.Status(it.Status), doseLabel(it.Dose.Medication))
	}
	return nil
}

func (c *Commands) Upcoming(ctx context.Context, args []string) error {
	fs := c.newFlagSet("upcoming", "[--window 60m]")
	window := fs.Duration("window", 0, "look-ahead window")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}

	doses, err := c.Service.Upcoming(ctx, *window)
	if err != nil {
		return err
	}
	if len(doses) == 0 {
		c.Out.Muted("Nothing due soon.")
		return nil
	}
	for _, d := range doses {
		c.Out.Line("%s  %s  %s", d.Time, doseLabel(d.Medication), c.Out.muted.Render(shortID(d.Medication.ID)))
	}
	return nil
}

func (c *Commands) Week(ctx context.Context) error {
	week, err := c.Service.Weekly(ctx)
	if err != nil {
		return err
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		c.Out.Title(wd.String())
		if len(week[wd]) == 0 {
			c.Out.Muted("  -")
			continue
		}
		for _, sl := range week[wd] {
			c.Out.Line("  %s  %s", sl.Time, doseLabel(sl.Medication))
		}
	}
	return nil
}

func (c *Commands) Adherence(ctx context.Context, args []string) error {
	fs := c.newFlagSet("adherence", "[--from YYYY-MM-DD] [--to YYYY-MM-DD] [--days 7]")
	fromFlag := fs.String("from", "", "first date")
	toFlag := fs.String("to", "", "last date, default today")
	days := fs.Int("days", 7, "range length when --from is not given")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}

	to := schedule.DateOf(c.Service.Now())
	if *toFlag != "" {
		d, err := schedule.ParseDate(*toFlag)
		if err != nil {
			return fmt.Errorf("invalid date %q", *toFlag)
		}
		to = d
	}
	from := to.AddDays(-(*days - 1))
	if *fromFlag != "" {
		d, err := schedule.ParseDate(*fromFlag)
		if err != nil {
			return fmt.Errorf("invalid date %q", *fromFlag)
		}
		from = d
	}

	sum, err := c.Service.Adherence(ctx, from, to)
	if err != nil {
		return err
	}
	c.Out.Title(fmt.Sprintf("Adherence %s to %s", sum.From, sum.To))
	c.Out.Line("Scheduled: %d", sum.Scheduled)
	c.Out.Line("Taken:     %d", sum.Taken)
	c.Out.Line("Missed:    %d", sum.Missed)
	c.Out.Line("Due soon:  %d", sum.DueSoon)
	c.Out.Line("Pending:   %d", sum.Pending)
	c.Out.Line("Rate:      %.1f%%", sum.Rate)
	return nil
}

func (c *Commands) Reminders(ctx context.Context, args []string) error {
	id := ""
	if len(args) > 0 {
		id = args[0]
	}
	triggers, err := c.Service.Reminders(ctx, id)
	if err != nil {
		return err
	}
	if len(triggers) == 0 {
		c.Out.Muted("No reminders installed.")
		return nil
	}
	for _, t := range triggers {
		c.Out.Line("%-3s %s  %s", dayNames[t.Weekday], t.Clock(), t.Title)
		c.Out.Muted("    %s", t.Identifier)
	}
	return nil
}

func (c *Commands) Sync(ctx context.Context, args []string) error {
	id, _, err := c.requireID("sync", args)
	if err != nil {
		return err
	}
	report, err := c.Service.SyncReminders(ctx, id)
	c.Out.Line("Scheduled %d, canceled %d, failed %d", len(report.Scheduled), len(report.Canceled), len(report.Failures))
	return err
}

func (c *Commands) Import(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(c.Stderr, "Usage: medtracker import <file.yaml>")
		return ErrUsage
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	meds, err := ParseImport(f)
	if err != nil {
		return err
	}
	res, err := Import(ctx, c.Service, meds)
	c.Out.Line("Imported %d medication(s), skipped %d", res.Created, res.Skipped)
	return err
}

func (c *Commands) ExportICS(ctx context.Context, args []string) error {
	fs := c.newFlagSet("export-ics", "[--out file.ics] [--from YYYY-MM-DD]")
	out := fs.String("out", "", "output file, default stdout")
	fromFlag := fs.String("from", "", "first date, default today")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}

	now := c.Service.Now()
	from := schedule.DateOf(now)
	if *fromFlag != "" {
		d, err := schedule.ParseDate(*fromFlag)
		if err != nil {
			return fmt.Errorf("invalid date %q", *fromFlag)
		}
		from = d
	}
	meds, err := c.Service.List(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := calendar.Encode(&buf, calendar.Export(meds, from, now.Location(), now)); err != nil {
		return err
	}
	if *out == "" {
		_, err = c.Out.w.Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(*out, buf.Bytes(), 0644); err != nil {
		return err
	}
	c.Out.Line("Wrote %s", *out)
	return nil
}

func (c *Commands) Status() error {
	cfg := c.Config
	c.Out.Title("MedTracker Status")
	c.Out.Line("Version:  %s", Version)
	c.Out.Line("Data:     %s", cfg.Storage.DataDir)
	c.Out.Line("User:     %s", c.Service.UserID())
	c.Out.Line("Timezone: %s", c.Service.Now().Location())
	c.Out.Line("Due soon: %s", c.Service.Window())
	c.Out.Line("Server:   http://%s", cfg.ListenAddr())
	c.Out.Line("Reminders: %s", channelStatus(cfg.Reminders.Enabled))
	c.Out.Line("Telegram: %s", channelStatus(cfg.Channels.Telegram.Enabled))
	if cfg.Channels.Telegram.Enabled {
		c.Out.Line("  Bot Token: %s", maskToken(cfg.Channels.Telegram.BotToken))
	}
	c.Out.Line("Discord:  %s", channelStatus(cfg.Channels.Discord.Enabled))
	if cfg.Channels.Discord.Enabled {
		c.Out.Line("  Token: %s", maskToken(cfg.Channels.Discord.Token))
	}
	return nil
}

func (c *Commands) requireID(name string, args []string) (string, []string, error) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		fmt.Fprintf(c.Stderr, "Usage: medtracker %s <id>\n", name)
		return "", nil, ErrUsage
	}
	return c.resolveID(args[0]), args[1:], nil
}

// resolveID expands an unambiguous id prefix as printed by list.
func (c *Commands) resolveID(prefix string) string {
	meds, err := c.Service.List(context.Background())
	if err != nil {
		return prefix
	}
	match := ""
	for _, m := range meds {
		if m.ID == prefix {
			return prefix
		}
		if strings.HasPrefix(m.ID, prefix) {
			if match != "" {
				return prefix
			}
			match = m.ID
		}
	}
	if match == "" {
		return prefix
	}
	return match
}

func doseLabel(m *schedule.Medication) string {
	if m.Dosage == "" {
		return m.Name
	}
	return m.Name + " " + m.Dosage
}

func PrintHelp(w io.Writer) {
	fmt.Fprintln(w, `MedTracker - medication schedule and adherence

Usage: medtracker [--config file] [--data dir] <command> [args]

Commands:
  serve                         Run the HTTP API and reminder delivery
  list                          List medications
  add --name --days --times     Add a medication (--dosage, --notes optional)
  add "<phrase>"                Add from a phrase, e.g. "Lisinopril 10mg mon wed 8am"
  update <id> [flags]           Change fields of a medication
  delete <id>                   Delete a medication and its reminders
  take <id> <key|HH:MM>         Mark a dose taken
  untake <id> <key|HH:MM>       Undo a taken mark
  today [--date]                Doses of a day with their status
  upcoming [--window]           Untaken doses due soon
  week                          Weekly schedule
  adherence [--from --to]       Adherence summary
  reminders [id]                Installed reminder triggers
  sync <id>                     Rebuild the reminders of a medication
  import <file.yaml>            Import medications
  export-ics [--out]            Export the schedule as iCalendar
  status                        Show configuration
  version                       Show version
  help                          Show this help

Days accept mon,wed or 1,3 (0=Sunday), daily, weekdays, weekends.
Dose keys look like 2024-01-01T08:00.`)
}
