package main

import (
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	cmd_commons "github.com/cyverse/cachekit/cmd/commons"
	"github.com/cyverse/cachekit/commons"
	log "github.com/sirupsen/logrus"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "cachekit [command] [args..]",
	Short:         "Inspect and manage a cachekit cache directory",
	Long:          "Put, get, inspect and expire entries of a cachekit cache directory and export its metrics.",
	RunE:          processCommand,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func processCommand(command *cobra.Command, args []string) error {
	_, logWriter, cont, err := cmd_commons.ProcessCommonFlags(command)
	if logWriter != nil {
		defer logWriter.Close()
	}

	if err != nil {
		return err
	}

	if !cont {
		return nil
	}

	return cmd_commons.PrintHelp(command)
}

func main() {
	log.SetFormatter(&log.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05.000000",
		FullTimestamp:   true,
	})

	log.SetLevel(log.InfoLevel)

	logger := log.WithFields(log.Fields{
		"package":  "main",
		"function": "main",
	})

	// attach common flags
	cmd_commons.SetCommonFlags(rootCmd)

	addCommands(rootCmd)

	err := Execute()
	if err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

// prepare processes common flags and starts profiling if asked.
// The returned cleanup must be called when the command is done.
func prepare(command *cobra.Command) (*commons.Config, func(), bool, error) {
	logger := log.WithFields(log.Fields{
		"package":  "main",
		"function": "prepare",
	})

	config, logWriter, cont, err := cmd_commons.ProcessCommonFlags(command)

	closers := []io.Closer{}
	if logWriter != nil {
		closers = append(closers, logWriter)
	}

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
	}

	if err != nil || !cont {
		cleanup()
		return nil, func() {}, cont, err
	}

	versionInfo := commons.GetVersion()
	logger.Debugf("cachekit version - %s, commit - %s, instance - %s", versionInfo.ServiceVersion, versionInfo.GitCommit, config.InstanceID)

	// profile
	if config.Profile && config.ProfileServicePort > 0 {
		go func() {
			profileServiceAddr := fmt.Sprintf(":%d", config.ProfileServicePort)

			logger.Infof("Starting profile service at %s", profileServiceAddr)
			http.ListenAndServe(profileServiceAddr, nil)
		}()

		prof := profile.Start(profile.MemProfile, profile.NoShutdownHook)
		closers = append(closers, profileStopper{prof})
	}

	return config, cleanup, true, nil
}

type profileStopper struct {
	prof interface{ Stop() }
}

func (stopper profileStopper) Close() error {
	stopper.prof.Stop()
	return nil
}

func waitForCtrlC() {
	var endWaiter sync.WaitGroup

	endWaiter.Add(1)
	signalChannel := make(chan os.Signal, 1)

	signal.Notify(signalChannel, os.Interrupt)

	go func() {
		<-signalChannel
		endWaiter.Done()
	}()

	endWaiter.Wait()
}
