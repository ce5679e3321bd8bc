package main

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/go-errors/errors"
	"github.com/integrii/flaggy"
	"github.com/samber/lo"

	"github.com/christophe-duc/fleetctl/pkg/app"
	"github.com/christophe-duc/fleetctl/pkg/config"
	"github.com/christophe-duc/fleetctl/pkg/utils"
	"github.com/jesseduffield/yaml"
)

const DEFAULT_VERSION = "unversioned"

var (
	commit      string
	version     = DEFAULT_VERSION
	date        string
	buildSource = "unknown"

	configFlag    = false
	debuggingFlag = false
	dryRunFlag    = false
)

func main() {
	updateBuildInfo()

	info := fmt.Sprintf(
		"%s\nDate: %s\nBuildSource: %s\nCommit: %s\nOS: %s\nArch: %s",
		version,
		date,
		buildSource,
		commit,
		runtime.GOOS,
		runtime.GOARCH,
	)

	flaggy.SetName("fleetctl")
	flaggy.SetDescription("Run shell commands across fleets of hosts, interactively or in parallel")
	flaggy.DefaultParser.AdditionalHelpPrepend = "A fleet tree (hosts and nodes) is built in Go by the embedding program; this binary only bootstraps shared config, logging and console services."

	flaggy.Bool(&configFlag, "c", "config", "Print the current default config")
	flaggy.Bool(&debuggingFlag, "d", "debug", "Enable debug logging")
	flaggy.Bool(&dryRunFlag, "n", "dry-run", "Run every action sandboxed: no command leaves its host")
	flaggy.SetVersion(info)

	flaggy.Parse()

	if configFlag {
		var buf bytes.Buffer
		encoder := yaml.NewEncoder(&buf)
		if err := encoder.Encode(config.GetDefaultConfig()); err != nil {
			log.Fatal(err.Error())
		}
		fmt.Printf("%v\n", buf.String())
		os.Exit(0)
	}

	appConfig, err := config.NewAppConfig("fleetctl", version, commit, date, buildSource, debuggingFlag, dryRunFlag)
	if err != nil {
		log.Fatal(err.Error())
	}

	fleetApp, err := app.NewApp(appConfig)
	if err == nil {
		err = fleetApp.Run()
	}
	fleetApp.Close()

	if err != nil {
		if errMessage, known := fleetApp.KnownError(err); known {
			log.Println(errMessage)
			os.Exit(0)
		}

		newErr := errors.Wrap(err, 0)
		stackTrace := newErr.ErrorStack()
		fleetApp.Log.Error(stackTrace)

		log.Fatalf("an error occurred\n\n%s", stackTrace)
	}
}

func updateBuildInfo() {
	if version == DEFAULT_VERSION {
		if buildInfo, ok := debug.ReadBuildInfo(); ok {
			revision, ok := lo.Find(buildInfo.Settings, func(setting debug.BuildSetting) bool {
				return setting.Key == "vcs.revision"
			})
			if ok {
				commit = revision.Value
				// if fleetctl was built from source we'll show the version as the
				// abbreviated commit hash
				version = utils.SafeTruncate(revision.Value, 7)
			}

			// if version hasn't been set we assume that neither has the date
			builtAt, ok := lo.Find(buildInfo.Settings, func(setting debug.BuildSetting) bool {
				return setting.Key == "vcs.time"
			})
			if ok {
				date = builtAt.Value
			}
		}
	}
}
