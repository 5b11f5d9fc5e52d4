package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"strings"

	"github.com/cyverse/cachekit/cache"
	"github.com/cyverse/cachekit/cache/disk"
	"github.com/cyverse/cachekit/cache/ttl"
	cmd_commons "github.com/cyverse/cachekit/cmd/commons"
	"github.com/cyverse/cachekit/commons"
	"github.com/cyverse/cachekit/utils"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

var valueTypeTags = map[string]string{
	"bytes":        disk.TypeBytes,
	"string":       disk.TypeString,
	"json":         disk.TypeJSONObject,
	"jsonarray":    disk.TypeJSONArray,
	"bitmap":       disk.TypeBitmap,
	"drawable":     disk.TypeDrawable,
	"parcelable":   disk.TypeParcelable,
	"serializable": disk.TypeSerializable,
}

func valueTypeNames() string {
	return "bytes, string, json, jsonarray, bitmap, drawable, parcelable, serializable"
}

func addCommands(root *cobra.Command) {
	putCmd := &cobra.Command{
		Use:   "put <key> [value]",
		Short: "Store a value",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  processPutCommand,
	}
	putCmd.Flags().StringP("type", "t", "string", "Set value type ("+valueTypeNames()+")")
	putCmd.Flags().IntP("ttl", "", ttl.NoExpiration, "Set time to live in seconds, -1 to keep until evicted")
	putCmd.Flags().StringP("file", "f", "", "Read the value from a file")

	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print a value",
		Args:  cobra.ExactArgs(1),
		RunE:  processGetCommand,
	}
	getCmd.Flags().StringP("type", "t", "string", "Set value type ("+valueTypeNames()+")")
	getCmd.Flags().StringP("output", "o", "", "Write the value to a file")

	inspectCmd := &cobra.Command{
		Use:   "inspect <key>",
		Short: "Show the cache file of a value",
		Args:  cobra.ExactArgs(1),
		RunE:  processInspectCommand,
	}
	inspectCmd.Flags().StringP("type", "t", "string", "Set value type ("+valueTypeNames()+")")

	removeCmd := &cobra.Command{
		Use:   "remove <key>",
		Short: "Remove a key under every type",
		Args:  cobra.ExactArgs(1),
		RunE:  processRemoveCommand,
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cache file",
		Args:  cobra.NoArgs,
		RunE:  processClearCommand,
	}

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove expired cache files",
		Args:  cobra.NoArgs,
		RunE:  processPurgeCommand,
	}

	statCmd := &cobra.Command{
		Use:   "stat",
		Short: "Show cache size and file count",
		Args:  cobra.NoArgs,
		RunE:  processStatCommand,
	}

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Purge expired files periodically and export metrics",
		Args:  cobra.NoArgs,
		RunE:  processMonitorCommand,
	}
	monitorCmd.Flags().IntP("interval", "i", 0, "Set purge interval in seconds")
	monitorCmd.Flags().IntP("prometheus_exporter_port", "", commons.PrometheusExporterPortDefault, "Set prometheus exporter port, 0 to disable")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, args []string) error {
			return cmd_commons.PrintVersion(command)
		},
	}

	root.AddCommand(putCmd, getCmd, inspectCmd, removeCmd, clearCmd, purgeCmd, statCmd, monitorCmd, versionCmd)
}

func getValueTypeTag(command *cobra.Command) (string, string, error) {
	typeName, err := command.Flags().GetString("type")
	if err != nil {
		return "", "", err
	}

	typeName = strings.ToLower(typeName)
	typeTag, ok := valueTypeTags[typeName]
	if !ok {
		return "", "", xerrors.Errorf("unknown value type %q, must be one of %s", typeName, valueTypeNames())
	}

	return typeName, typeTag, nil
}

func readInputValue(command *cobra.Command, args []string) ([]byte, error) {
	filePath, err := command.Flags().GetString("file")
	if err != nil {
		return nil, err
	}

	if len(filePath) > 0 {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, xerrors.Errorf("failed to read value file %q: %w", filePath, err)
		}
		return data, nil
	}

	if len(args) < 2 {
		return nil, xerrors.Errorf("a value or --file must be given")
	}

	return []byte(args[1]), nil
}

func processPutCommand(command *cobra.Command, args []string) error {
	logger := log.WithFields(log.Fields{
		"package":  "main",
		"function": "processPutCommand",
	})

	config, cleanup, cont, err := prepare(command)
	defer cleanup()
	if err != nil || !cont {
		return err
	}

	typeName, _, err := getValueTypeTag(command)
	if err != nil {
		return err
	}

	saveTime, err := command.Flags().GetInt("ttl")
	if err != nil {
		return err
	}

	data, err := readInputValue(command, args)
	if err != nil {
		return err
	}

	doubleCache, err := cmd_commons.OpenCache(config)
	if err != nil {
		return err
	}

	key := args[0]
	err = putValue(doubleCache, typeName, key, data, saveTime)
	if err != nil {
		return err
	}

	logger.Debugf("Stored %s value for key %s (%d bytes)", typeName, key, len(data))
	return nil
}

func putValue(doubleCache *cache.DoubleCache, typeName string, key string, data []byte, saveTime int) error {
	switch typeName {
	case "bytes":
		return doubleCache.PutBytes(key, data, saveTime)
	case "string":
		return doubleCache.PutString(key, string(data), saveTime)
	case "json":
		object := map[string]interface{}{}
		err := json.Unmarshal(data, &object)
		if err != nil {
			return xerrors.Errorf("failed to parse JSON object: %w", err)
		}
		return doubleCache.PutJSONObject(key, object, saveTime)
	case "jsonarray":
		array := []interface{}{}
		err := json.Unmarshal(data, &array)
		if err != nil {
			return xerrors.Errorf("failed to parse JSON array: %w", err)
		}
		return doubleCache.PutJSONArray(key, array, saveTime)
	case "bitmap", "drawable":
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return xerrors.Errorf("failed to decode image: %w", err)
		}
		if typeName == "bitmap" {
			return doubleCache.PutBitmap(key, img, saveTime)
		}
		return doubleCache.PutDrawable(key, img, saveTime)
	case "parcelable":
		message := &structpb.Struct{}
		err := protojson.Unmarshal(data, message)
		if err != nil {
			return xerrors.Errorf("failed to parse JSON object as protobuf struct: %w", err)
		}
		return doubleCache.PutParcelable(key, message, saveTime)
	case "serializable":
		return doubleCache.PutSerializable(key, string(data), saveTime)
	default:
		return xerrors.Errorf("unknown value type %q", typeName)
	}
}

// getValue returns the printable form of a value, or false if it is absent
func getValue(doubleCache *cache.DoubleCache, typeName string, key string) ([]byte, bool, error) {
	switch typeName {
	case "bytes":
		data := doubleCache.GetBytes(key, nil)
		return data, data != nil, nil
	case "string":
		// strings may be empty, absence is detected with a default no caller stores
		const absent = "\x00absent"
		str := doubleCache.GetString(key, absent)
		return []byte(str), str != absent, nil
	case "json":
		object := doubleCache.GetJSONObject(key, nil)
		if object == nil {
			return nil, false, nil
		}
		data, err := json.MarshalIndent(object, "", "  ")
		return data, true, err
	case "jsonarray":
		array := doubleCache.GetJSONArray(key, nil)
		if array == nil {
			return nil, false, nil
		}
		data, err := json.MarshalIndent(array, "", "  ")
		return data, true, err
	case "bitmap", "drawable":
		var img image.Image
		if typeName == "bitmap" {
			img = doubleCache.GetBitmap(key, nil)
		} else {
			img = doubleCache.GetDrawable(key, nil)
		}
		if img == nil {
			return nil, false, nil
		}
		buffer := bytes.Buffer{}
		err := png.Encode(&buffer, img)
		return buffer.Bytes(), true, err
	case "parcelable":
		message := &structpb.Struct{}
		if !doubleCache.GetParcelable(key, message) {
			return nil, false, nil
		}
		data, err := protojson.MarshalOptions{Multiline: true}.Marshal(message)
		return data, true, err
	case "serializable":
		value := ""
		if !doubleCache.GetSerializable(key, &value) {
			return nil, false, nil
		}
		return []byte(value), true, nil
	default:
		return nil, false, xerrors.Errorf("unknown value type %q", typeName)
	}
}

func processGetCommand(command *cobra.Command, args []string) error {
	config, cleanup, cont, err := prepare(command)
	defer cleanup()
	if err != nil || !cont {
		return err
	}

	typeName, _, err := getValueTypeTag(command)
	if err != nil {
		return err
	}

	outputPath, err := command.Flags().GetString("output")
	if err != nil {
		return err
	}

	doubleCache, err := cmd_commons.OpenCache(config)
	if err != nil {
		return err
	}

	key := args[0]
	data, ok, err := getValue(doubleCache, typeName, key)
	if err != nil {
		return err
	}

	if !ok {
		return xerrors.Errorf("no %s value for key %q", typeName, key)
	}

	if len(outputPath) > 0 {
		err = os.WriteFile(outputPath, data, 0644)
		if err != nil {
			return xerrors.Errorf("failed to write output file %q: %w", outputPath, err)
		}
		return nil
	}

	_, err = os.Stdout.Write(data)
	if err != nil {
		return err
	}

	if typeName != "bytes" && typeName != "bitmap" && typeName != "drawable" {
		fmt.Println()
	}
	return nil
}

func processInspectCommand(command *cobra.Command, args []string) error {
	config, cleanup, cont, err := prepare(command)
	defer cleanup()
	if err != nil || !cont {
		return err
	}

	typeName, typeTag, err := getValueTypeTag(command)
	if err != nil {
		return err
	}

	diskCache, err := cmd_commons.OpenDiskCache(config)
	if err != nil {
		return err
	}

	key := args[0]
	info, ok := diskCache.Inspect(typeTag, key)
	if !ok {
		return xerrors.Errorf("no %s value for key %q", typeName, key)
	}

	fmt.Printf("Path:          %s\n", info.Path)
	fmt.Printf("Size:          %s (%d bytes)\n", humanize.Bytes(uint64(info.Size)), info.Size)
	fmt.Printf("Last Modified: %s (%s)\n", utils.MakeTimeToString(info.LastModified), humanize.Time(info.LastModified))
	if info.Expires {
		fmt.Printf("Expires:       %s (%s)\n", utils.MakeTimeToString(info.Deadline), humanize.Time(info.Deadline))
	} else {
		fmt.Printf("Expires:       never\n")
	}
	return nil
}

func processRemoveCommand(command *cobra.Command, args []string) error {
	config, cleanup, cont, err := prepare(command)
	defer cleanup()
	if err != nil || !cont {
		return err
	}

	doubleCache, err := cmd_commons.OpenCache(config)
	if err != nil {
		return err
	}

	if !doubleCache.Remove(args[0]) {
		return xerrors.Errorf("failed to remove key %q", args[0])
	}
	return nil
}

func processClearCommand(command *cobra.Command, args []string) error {
	config, cleanup, cont, err := prepare(command)
	defer cleanup()
	if err != nil || !cont {
		return err
	}

	doubleCache, err := cmd_commons.OpenCache(config)
	if err != nil {
		return err
	}

	if !doubleCache.Clear() {
		return xerrors.Errorf("failed to remove some cache files in %s", config.CacheRootPath)
	}
	return nil
}

func processPurgeCommand(command *cobra.Command, args []string) error {
	config, cleanup, cont, err := prepare(command)
	defer cleanup()
	if err != nil || !cont {
		return err
	}

	diskCache, err := cmd_commons.OpenDiskCache(config)
	if err != nil {
		return err
	}

	purged, err := diskCache.Purge()
	if err != nil {
		return err
	}

	fmt.Printf("Purged %d expired cache files\n", purged)
	return nil
}

func processStatCommand(command *cobra.Command, args []string) error {
	config, cleanup, cont, err := prepare(command)
	defer cleanup()
	if err != nil || !cont {
		return err
	}

	diskCache, err := cmd_commons.OpenDiskCache(config)
	if err != nil {
		return err
	}

	size := diskCache.GetCacheSize()

	fmt.Printf("Version:    %s\n", commons.GetServiceVersion())
	fmt.Printf("Root:       %s\n", diskCache.GetRootPath())
	fmt.Printf("Files:      %s / %s\n", humanize.Comma(int64(diskCache.GetCacheCount())), humanize.Comma(int64(diskCache.GetCountLimit())))
	fmt.Printf("Size:       %s (%d bytes) / %s\n", humanize.Bytes(uint64(size)), size, humanize.Bytes(uint64(diskCache.GetSizeLimit())))
	return nil
}
