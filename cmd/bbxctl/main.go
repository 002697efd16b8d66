package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/qdrk/bf-blackbox-parser/internal/blackbox"
	"github.com/qdrk/bf-blackbox-parser/internal/chart"
	"github.com/qdrk/bf-blackbox-parser/internal/common"
	"github.com/qdrk/bf-blackbox-parser/internal/dict"
	"github.com/qdrk/bf-blackbox-parser/internal/export"
	"github.com/qdrk/bf-blackbox-parser/internal/health"
	"github.com/qdrk/bf-blackbox-parser/internal/manifest"
	"github.com/qdrk/bf-blackbox-parser/internal/report"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	switch cmd {
	case "info":
		infoCmd(os.Args[2:])
	case "fields":
		fieldsCmd(os.Args[2:])
	case "export":
		exportCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	case "chart":
		chartCmd(os.Args[2:])
	case "manifest":
		manifestCmd(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`bbxctl %s (built %s) <command> [options]

Commands:
  info      --in <file.bbl>
  fields    --in <file.bbl> [--log <n>] [--dict <fields.json>]
  export    --in <file.bbl> [--log <n>] --out <file> [--format csv|json|ndjson]
  report    --in <file.bbl> --out <report.pdf|report.json>
  chart     --in <file.bbl> [--log <n>] --out <chart.html> [--fields a,b,c]
  manifest  --inputs <comma-separated> --out <manifest.json>
`, version, buildDate)
}

func openLogFile(path string) (*blackbox.FlightLog, []byte) {
	data, err := os.ReadFile(path)
	if err != nil {
		common.Fatalf("read %s: %v", path, err)
	}
	log, err := blackbox.New(data)
	if err != nil {
		common.Fatalf("open %s: %v", path, err)
	}
	return log, data
}

func infoCmd(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	in := fs.String("in", "", "input blackbox log")
	fs.Parse(args)
	if *in == "" {
		common.Fatalf("info: --in is required")
	}

	log, data := openLogFile(*in)
	fmt.Printf("%s: %d bytes, %d flight(s)\n", *in, len(data), log.LogCount())

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tduration\tframes\tcorrupt\tchunks\tstatus")
	for i := 0; i < log.LogCount(); i++ {
		dir, err := log.Directory(i)
		if err != nil {
			fmt.Fprintf(w, "%d\t-\t-\t-\t-\t%v\n", i+1, err)
			continue
		}
		status := "ok"
		if dir.Error != "" {
			status = dir.Error
		}
		frames := 0
		if fts := dir.Stats.Frame[blackbox.FrameTypeIntra]; fts != nil {
			frames += fts.ValidCount
		}
		if fts := dir.Stats.Frame[blackbox.FrameTypeInter]; fts != nil {
			frames += fts.ValidCount
		}
		duration := "-"
		if dir.HasMinTime {
			duration = fmt.Sprintf("%.1fs", float64(dir.MaxTime-dir.MinTime)/1e6)
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%s\n",
			i+1, duration, frames, dir.Stats.TotalCorruptedFrames, dir.ChunkCount(), status)
	}
	w.Flush()
}

func fieldsCmd(args []string) {
	fs := flag.NewFlagSet("fields", flag.ExitOnError)
	in := fs.String("in", "", "input blackbox log")
	logIndex := fs.Int("log", 0, "sub-log index")
	dictPath := fs.String("dict", "", "field dictionary overlay")
	fs.Parse(args)
	if *in == "" {
		common.Fatalf("fields: --in is required")
	}

	store := dict.Default()
	if *dictPath != "" {
		loaded, err := dict.EnsureLoaded(*dictPath)
		if err != nil {
			common.Fatalf("load dictionary: %v", err)
		}
		store = loaded
	}

	log, _ := openLogFile(*in)
	if err := log.Open(*logIndex); err != nil {
		common.Fatalf("open log %d: %v", *logIndex, err)
	}
	names, err := log.MainFieldNames()
	if err != nil {
		common.Fatalf("field names: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "field\tdisplay\tunit\tgroup")
	for _, name := range names {
		entry := store.Lookup(name)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, entry.Name, entry.Unit, entry.Group)
	}
	w.Flush()

	groups := dict.DefaultGraphGroups(store, names)
	groupNames := make([]string, 0, len(groups))
	for g := range groups {
		groupNames = append(groupNames, g)
	}
	sort.Strings(groupNames)
	fmt.Printf("\ndefault graph groups: %s\n", strings.Join(groupNames, ", "))
}

func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	in := fs.String("in", "", "input blackbox log")
	out := fs.String("out", "", "output file")
	logIndex := fs.Int("log", 0, "sub-log index")
	format := fs.String("format", "csv", "csv, json or ndjson")
	fs.Parse(args)
	if *in == "" || *out == "" {
		common.Fatalf("export: --in and --out are required")
	}

	log, _ := openLogFile(*in)
	if err := log.Open(*logIndex); err != nil {
		common.Fatalf("open log %d: %v", *logIndex, err)
	}

	f, err := os.Create(*out)
	if err != nil {
		common.Fatalf("create %s: %v", *out, err)
	}
	defer f.Close()

	metrics := common.NewMetrics()
	log.SetMetrics(metrics)
	metrics.Start()
	stopProgress := common.StartProgressPrinter(os.Stderr, metrics, time.Second)
	err = export.ExportLog(f, log, *format)
	stopProgress()
	metrics.Stop()
	if err != nil {
		common.Fatalf("export: %v", err)
	}
	metrics.Snapshot().WriteSummary(os.Stderr)
	fmt.Printf("wrote %s\n", *out)
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	in := fs.String("in", "", "input blackbox log")
	out := fs.String("out", "", "output report (.pdf or .json)")
	fs.Parse(args)
	if *in == "" || *out == "" {
		common.Fatalf("report: --in and --out are required")
	}

	log, data := openLogFile(*in)
	metrics := common.NewMetrics()
	log.SetMetrics(metrics)
	metrics.Start()
	stopProgress := common.StartProgressPrinter(os.Stderr, metrics, time.Second)
	healthReport := health.Evaluate(*in, log, health.Builtin())
	rep := report.Build(*in, data, log, healthReport)
	stopProgress()
	metrics.Stop()

	var err error
	if strings.HasSuffix(strings.ToLower(*out), ".pdf") {
		err = report.SavePDF(rep, *out)
	} else {
		err = report.SaveJSON(rep, *out)
	}
	if err != nil {
		common.Fatalf("save report: %v", err)
	}
	fmt.Printf("wrote %s (%d flights, health %s)\n",
		*out, len(rep.Logs), passLabel(rep.Health.Summary.Pass))
}

func chartCmd(args []string) {
	fs := flag.NewFlagSet("chart", flag.ExitOnError)
	in := fs.String("in", "", "input blackbox log")
	out := fs.String("out", "", "output HTML file")
	logIndex := fs.Int("log", 0, "sub-log index")
	fields := fs.String("fields", "gyroADC[0],gyroADC[1],gyroADC[2]", "comma-separated fields to plot")
	fs.Parse(args)
	if *in == "" || *out == "" {
		common.Fatalf("chart: --in and --out are required")
	}

	log, _ := openLogFile(*in)
	if err := log.Open(*logIndex); err != nil {
		common.Fatalf("open log %d: %v", *logIndex, err)
	}
	minTime, err := log.MinTime(*logIndex)
	if err != nil {
		common.Fatalf("time range: %v", err)
	}
	maxTime, _ := log.MaxTime(*logIndex)

	err = chart.RenderTimeRangeToFile(*out, log, minTime, maxTime, chart.Options{
		Title:  fmt.Sprintf("%s (log %d)", *in, *logIndex+1),
		Fields: strings.Split(*fields, ","),
	})
	if err != nil {
		common.Fatalf("render chart: %v", err)
	}
	fmt.Printf("wrote %s\n", *out)
}

func manifestCmd(args []string) {
	fs := flag.NewFlagSet("manifest", flag.ExitOnError)
	inputs := fs.String("inputs", "", "comma-separated files to include")
	out := fs.String("out", "", "output manifest.json")
	verify := fs.String("verify", "", "verify an existing manifest instead")
	fs.Parse(args)

	if *verify != "" {
		m, err := manifest.Load(*verify)
		if err != nil {
			common.Fatalf("load manifest: %v", err)
		}
		mismatched, err := manifest.Verify(m)
		if err != nil {
			common.Fatalf("verify: %v", err)
		}
		if len(mismatched) > 0 {
			common.Fatalf("digest mismatch: %s", strings.Join(mismatched, ", "))
		}
		fmt.Println("manifest verified")
		return
	}

	if *inputs == "" || *out == "" {
		common.Fatalf("manifest: --inputs and --out are required")
	}
	m, err := manifest.Build(strings.Split(*inputs, ","))
	if err != nil {
		common.Fatalf("build manifest: %v", err)
	}
	if err := manifest.Save(m, *out); err != nil {
		common.Fatalf("save manifest: %v", err)
	}
	fmt.Printf("wrote %s (%d items)\n", *out, len(m.Items))
}

func passLabel(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}
