// Confessor
// Copyright (c) 2016, 2025, DCSO GmbH

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/DCSO/confessor/output"
	"github.com/DCSO/confessor/registry"
	"github.com/DCSO/confessor/reporter"
	"github.com/DCSO/confessor/resultdb"
	"github.com/DCSO/confessor/submitter"
	"github.com/DCSO/confessor/uploader"

	// Parsers are registered using the following imports
	_ "github.com/DCSO/confessor/parsers/xzdropper"
	_ "github.com/DCSO/confessor/parsers/yaraid"

	"github.com/NeowayLabs/wabbit"
	"github.com/NeowayLabs/wabbit/amqp"
	log "github.com/sirupsen/logrus"
)

// renderReports serializes the merged reports in the requested format.
func renderReports(reports []*reporter.MergedReport, format string) ([]byte, error) {
	switch format {
	case "text":
		return []byte(output.Text(reports)), nil
	case "json":
		return output.JSON(reports)
	case "csv":
		var b strings.Builder
		if err := output.CSV(reports, &b); err != nil {
			return nil, err
		}
		return []byte(b.String()), nil
	}
	return nil, fmt.Errorf("unknown output format: %s", format)
}

func main() {
	var err error
	var s submitter.Submitter
	var u *uploader.Uploader
	var sampleFile = flag.String("file", "", "Path of the sample to parse")
	var parserNames = flag.String("parser", "", "Comma-separated parser names to run (source:name to disambiguate)")
	var listParsers = flag.Bool("list", false, "List installed parsers and exit")
	var format = flag.String("format", "text", "Output format (text, json, csv)")
	var outputDir = flag.String("outputdir", "", "Directory for dropped derived files")
	var includeSuppressed = flag.Bool("include-suppressed", false, "Include suppressed files in primary output")
	var mergeSameName = flag.Bool("merge-same-name", false, "Merge results from same-named parsers of different sources")
	var maxFiles = flag.Int("maxfiles", 0, "Maximum number of files per dispatch (0 = default)")
	var maxDepth = flag.Int("maxdepth", 0, "Maximum recursion depth per dispatch (0 = default)")
	var dataPath = flag.String("data", "", "Path for the report database (empty disables)")
	var logPath = flag.String("log", "", "Path for confessor log files (empty logs to stderr)")
	var submitReports = flag.Bool("submit", false, "Submit report JSON via AMQP")
	var amqpURI = flag.String("amqpuri", "localhost:5672", "Endpoint and port for the AMQP connection")
	var amqpExchange = flag.String("amqpexch", "confessor", "Exchange to post messages to")
	var amqpUser = flag.String("amqpuser", "sensor", "User name for the AMQP connection")
	var amqpPass = flag.String("amqppass", "sensor", "Password for the AMQP connection")
	var dummy = flag.Bool("dummy", false, "Log reports to the logger instead of submitting to AMQP")
	var uploadEndpoint = flag.String("uploadendpoint", "", "Endpoint for dropped file S3 upload")
	var uploadAccessKey = flag.String("uploadaccesskey", "", "Access key for S3 upload")
	var uploadSecretAccessKey = flag.String("uploadsecretaccesskey", "", "Secret access key for S3 upload")
	var uploadBucketName = flag.String("uploadbucket", "", "Bucket name for S3 upload")
	var uploadRegion = flag.String("uploadregion", "", "Region for S3 upload")
	var uploadScratchDir = flag.String("uploadscratchdir", "/tmp/confessor_scratch", "Temp directory for S3 upload")
	var uploadSSL = flag.Bool("uploadssl", false, "Use SSL for S3 upload")
	var verbose = flag.Bool("verbose", false, "Verbose output")
	var logJSON = flag.Bool("logjson", false, "JSON log output")
	flag.Parse()

	// Configure logging to file
	if len(*logPath) > 0 {
		if _, err = os.Stat(*logPath); os.IsNotExist(err) {
			log.Infof("Log directory %s does not exist, trying to create it", *logPath)
			err = os.MkdirAll(*logPath, os.ModePerm)
			if err != nil {
				log.Fatal(err)
			}
		}
		f, myerr := os.OpenFile(filepath.Join(*logPath, "confessor.log"),
			os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if myerr != nil {
			log.Fatal(myerr)
		}
		defer func() {
			f.Close()
			log.SetOutput(os.Stdout)
		}()
		log.SetOutput(f)
	}

	if *logJSON {
		log.SetFormatter(&log.JSONFormatter{})
	}

	if *verbose {
		log.Info("verbose log output enabled")
		log.SetLevel(log.DebugLevel)
	}

	if *listParsers {
		for _, name := range registry.Names() {
			fmt.Println(name)
		}
		return
	}

	if *sampleFile == "" {
		log.Fatal("no sample file given, use -file")
	}
	if *parserNames == "" {
		log.Fatal("no parser given, use -parser")
	}

	// Setup database connection and create the database file if not exist
	useStore := false
	if len(*dataPath) > 0 {
		if _, err = os.Stat(*dataPath); os.IsNotExist(err) {
			log.Infof("Database directory %s does not exist, trying to create it", *dataPath)
			os.MkdirAll(*dataPath, os.ModePerm)
		}
		err = resultdb.InitDB(*dataPath)
		if err != nil {
			log.Fatal(err)
		}
		defer resultdb.CloseDB()
		useStore = true
	}

	if *outputDir != "" {
		err = os.MkdirAll(*outputDir, os.ModePerm)
		if err != nil {
			log.Fatal(err)
		}
	}

	rep := reporter.New(reporter.Options{
		OutputDir:         *outputDir,
		IncludeSuppressed: *includeSuppressed,
		MergeSameName:     *mergeSameName,
		MaxFiles:          *maxFiles,
		MaxDepth:          *maxDepth,
		UseStore:          useStore,
	})

	data, err := os.ReadFile(*sampleFile)
	if err != nil {
		log.Fatal(err)
	}
	reports, err := rep.RunAll(strings.Split(*parserNames, ","),
		filepath.Base(*sampleFile), data)
	if err != nil {
		log.Fatal(err)
	}

	rendered, err := renderReports(reports, *format)
	if err != nil {
		log.Fatal(err)
	}
	os.Stdout.Write(rendered)

	// Create submitter
	if *submitReports {
		if *dummy {
			s = submitter.MakeDummySubmitter()
		} else {
			s, err = submitter.MakeAMQPSubmitterWithReconnector(*amqpURI, *amqpUser, *amqpPass,
				*amqpExchange, *verbose, func(url string) (wabbit.Conn, string, error) {
					c, e := amqp.Dial(url)
					return c, "fanout", e
				})
			if err != nil {
				log.Fatal(err)
			}
		}
		defer s.Finish()

		var msg []byte
		msg, err = output.JSON(reports)
		if err != nil {
			log.Fatal(err)
		}
		err = s.Submit(msg)
		if err != nil {
			log.Error(err)
		}
	}

	// Create uploader and ship dropped files
	if len(*uploadEndpoint) > 0 {
		err = os.MkdirAll(*uploadScratchDir, os.ModePerm)
		if err != nil {
			log.Fatal(err)
		}
		u, err = uploader.MakeS3Uploader(uploader.S3Credentials{
			Endpoint:        *uploadEndpoint,
			AccessKey:       *uploadAccessKey,
			SecretAccessKey: *uploadSecretAccessKey,
			BucketName:      *uploadBucketName,
			Region:          *uploadRegion,
		}, *uploadSSL, *outputDir, *uploadScratchDir, s)
		if err != nil {
			log.Fatal(err)
		}

		for _, mr := range reports {
			entry := resultdb.ReportEntry{
				Parser:   mr.Parser,
				Source:   mr.Source,
				Success:  mr.Success,
				Filename: mr.Filename,
				Hashes:   mr.Hashes,
				Metadata: mr.Metadata,
				Warnings: mr.Warnings,
				Dropped:  mr.Dropped,
			}
			for _, drop := range mr.Dropped {
				if drop.Path == "" {
					continue
				}
				err = u.Enqueue(entry, drop)
				if err != nil {
					log.Errorf("could not enqueue dropped file %s: %v", drop.Name, err)
				}
			}
		}
		u.Stop()
	}
}
