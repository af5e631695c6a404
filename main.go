package main

import (
	"encoding/json"
	"fmt"
	"github.com/alecthomas/kong"
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"
	"roadgrid/config"
	"roadgrid/importing"
	"roadgrid/index"
	"roadgrid/query"
	"roadgrid/storage"
	"roadgrid/web"
	"strings"
	"time"
)

const VERSION = "v0.1.0"

var cli struct {
	Logging  string      `help:"Logging verbosity." enum:"info,debug,trace" short:"l" default:"info"`
	Version  VersionFlag `help:"Print version information and quit" name:"version" short:"v"`
	Config   string      `help:"The YAML config file. Defaults are used when it does not exist." short:"c" default:"roadgrid.yaml" placeholder:"<config-file>"`
	Snapshot string      `help:"Snapshot within the storage directory to load before executing the command." short:"s" placeholder:"<name>"`
	Import   struct {
		Input string `help:"The input file. Either .osm, .osm.pbf or a .json dataset." placeholder:"<input-file>" arg:"" type:"existingfile"`
		Save  bool   `help:"Save a snapshot after the import. The name given by --snapshot is used, otherwise a timestamp based name."`
	} `cmd:"" help:"Imports roads, intersections and turn restrictions of the given file."`
	Serve struct {
		Port int `help:"The port of the HTTP server. Overrides the port of the config file." short:"p"`
	} `cmd:"" help:"Starts the HTTP server."`
	Point struct {
		Lat float64 `help:"Latitude in degrees." required:""`
		Lng float64 `help:"Longitude in degrees." required:""`
	} `cmd:"" help:"Returns the data of the cell containing the given point."`
	Area struct {
		MinLat float64 `help:"Minimum latitude of the bounding box." required:""`
		MinLng float64 `help:"Minimum longitude of the bounding box." required:""`
		MaxLat float64 `help:"Maximum latitude of the bounding box." required:""`
		MaxLng float64 `help:"Maximum longitude of the bounding box." required:""`
	} `cmd:"" help:"Returns the data of all cells covering the given bounding box."`
	Radius struct {
		Lat    float64 `help:"Latitude of the center in degrees." required:""`
		Lng    float64 `help:"Longitude of the center in degrees." required:""`
		Radius float64 `help:"Radius in meters." required:""`
	} `cmd:"" help:"Returns the data of all cells covering the circle around the given point."`
	Restrictions struct {
		From int64 `help:"ID of the road to come from." required:""`
		To   int64 `help:"ID of the road to go to." required:""`
	} `cmd:"" help:"Returns the turn restrictions relevant when going from one road to another."`
	Export struct {
		Token  string `help:"The cell token." placeholder:"<token>" arg:""`
		Output string `help:"The output file. Relative paths are relative to the storage directory." short:"o" placeholder:"<output-file>"`
	} `cmd:"" help:"Exports the roads and intersections of a cell as GeoJSON."`
	Stats struct {
	} `cmd:"" help:"Prints statistics about the stored data."`
	Cell struct {
		Token string `help:"The cell token." placeholder:"<token>" arg:""`
	} `cmd:"" help:"Prints level, bounds, center and neighbors of a cell."`
}

type VersionFlag string

func (v VersionFlag) Decode(ctx *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                         { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	app.Exit(0)
	return nil
}

func main() {
	ctx := kong.Parse(
		&cli,
		kong.Name("roadgrid"),
		kong.Description("A spatial index for road networks based on S2 cells."),
		kong.Vars{
			"version": VERSION,
		},
	)

	if strings.ToLower(cli.Logging) == "debug" {
		sigolo.SetDefaultLogLevel(sigolo.LOG_DEBUG)
	} else if strings.ToLower(cli.Logging) == "trace" {
		sigolo.SetDefaultLogLevel(sigolo.LOG_TRACE)
	} else if strings.ToLower(cli.Logging) == "info" {
		sigolo.SetDefaultLogLevel(sigolo.LOG_INFO)
		sigolo.SetDefaultFormatFunctionAll(sigolo.LogPlain)
	} else {
		sigolo.SetDefaultFormatFunctionAll(sigolo.LogPlain)
		sigolo.Fatalf("Unknown logging level '%s'", cli.Logging)
	}

	cfg, err := config.Load(cli.Config)
	sigolo.FatalCheck(err)

	cellIndex, err := index.NewCellIndex(cfg.Index.MinLevel, cfg.Index.MaxLevel, cfg.Index.MaxCoveringCells)
	sigolo.FatalCheck(err)

	store := storage.New(cfg.Storage.Dir)
	if cli.Snapshot != "" {
		err = store.LoadSnapshot(cli.Snapshot)
		if errors.Is(err, storage.ErrNotFound) && ctx.Command() == "import <input>" {
			sigolo.Infof("Snapshot %s does not exist yet, import into empty store", cli.Snapshot)
		} else {
			sigolo.FatalCheck(err)
		}
	}

	engine, err := query.NewEngine(cellIndex, store, query.Options{
		RestrictionMatch:  query.RestrictionMatch(cfg.Query.RestrictionMatch),
		CoveringCacheSize: cfg.Query.CoveringCacheSize,
	})
	sigolo.FatalCheck(err)

	importer := importing.NewImporter(cellIndex, store)

	switch ctx.Command() {
	case "import <input>":
		result, err := importer.ImportFile(cli.Import.Input)
		sigolo.FatalCheck(err)
		printJson(result)

		if cli.Import.Save {
			snapshotPath, err := store.SaveSnapshot(cli.Snapshot)
			sigolo.FatalCheck(err)
			sigolo.Infof("Saved snapshot %s", snapshotPath)
		}
	case "serve":
		port := cfg.Server.Port
		if cli.Serve.Port != 0 {
			port = cli.Serve.Port
		}

		api := web.NewApi(cellIndex, store, engine, importer)
		err = api.StartServer(port, time.Duration(cfg.Server.ReadTimeoutSeconds)*time.Second, time.Duration(cfg.Server.WriteTimeoutSeconds)*time.Second)
		sigolo.FatalCheck(err)
	case "point":
		result, err := engine.PointQuery(cli.Point.Lat, cli.Point.Lng)
		sigolo.FatalCheck(err)
		printJson(result)
	case "area":
		result, err := engine.AreaQuery(cli.Area.MinLat, cli.Area.MinLng, cli.Area.MaxLat, cli.Area.MaxLng)
		sigolo.FatalCheck(err)
		printJson(result)
	case "radius":
		result, err := engine.RadiusQuery(cli.Radius.Lat, cli.Radius.Lng, cli.Radius.Radius)
		sigolo.FatalCheck(err)
		printJson(result)
	case "restrictions":
		restrictions, err := engine.RouteRestrictionLookup(osm.WayID(cli.Restrictions.From), osm.WayID(cli.Restrictions.To))
		sigolo.FatalCheck(err)
		printJson(restrictions)
	case "export <token>":
		output := cli.Export.Output
		if output == "" {
			output = "cell_" + cli.Export.Token + ".geojson"
		}

		featureCollection, err := store.ExportCellGeoJSON(cli.Export.Token, output)
		sigolo.FatalCheck(err)
		sigolo.Debugf("Exported %d features", len(featureCollection.Features))
	case "stats":
		printJson(store.GetStatistics())
	case "cell <token>":
		info, err := web.CellInfo(cellIndex, cli.Cell.Token)
		sigolo.FatalCheck(err)
		printJson(info)
	default:
		sigolo.Errorf("Unknown command '%s'", ctx.Command())
	}
}

func printJson(value any) {
	jsonBytes, err := json.MarshalIndent(value, "", "  ")
	sigolo.FatalCheck(err)
	fmt.Println(string(jsonBytes))
}
