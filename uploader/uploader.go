// Confessor
// Copyright (c) 2016, 2025, DCSO GmbH

// Package uploader ships dropped derived files and their report metadata to
// an S3 endpoint, for example for later inspection of extracted implants.
package uploader

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"

	"github.com/DCSO/confessor/resultdb"
	"github.com/DCSO/confessor/submitter"

	"github.com/minio/minio-go"
	log "github.com/sirupsen/logrus"
)

// S3Credentials represents a set of data required to access an S3 resource.
type S3Credentials struct {
	Endpoint        string
	AccessKey       string
	SecretAccessKey string
	BucketName      string
	Region          string
}

// UploadJob contains all data required to locate a dropped file to be
// uploaded and its report metadata.
type UploadJob struct {
	entry          resultdb.ReportEntry
	localFilePath  string
	localEntryPath string
}

// Uploader is a component that facilitates the queued upload of dropped
// files to an S3 endpoint.
type Uploader struct {
	// Creds contains the required credentials for the S3 connection.
	Creds S3Credentials
	// UseSSL is true if SSL should be used for upload.
	UseSSL bool
	// Where the reporter drops derived files.
	DropDir string
	// Where the uploader queues files ready for upload.
	ScratchDir string
	// InChan is the channel to enqueue files for upload.
	InChan chan UploadJob
	// ClosedChan is used to signal uploader shutdown.
	ClosedChan chan bool
	// Client is a Minio client connecting to the given endpoint.
	Client *minio.Client
	// Submitter is used to send report entries after upload
	Submitter submitter.Submitter
}

// Enqueue adds a dropped file to the set of files to be uploaded, keyed by
// its content hash. It also records the report metadata for the drop.
func (u *Uploader) Enqueue(entry resultdb.ReportEntry, drop resultdb.DroppedFile) error {
	srcFile, err := os.Open(drop.Path)
	if err != nil {
		return err
	}

	destPath := path.Join(u.ScratchDir, drop.Sha256)
	destFile, err := os.Create(destPath)
	if err != nil {
		srcFile.Close()
		return err
	}

	_, err = io.Copy(destFile, srcFile)
	if err != nil {
		srcFile.Close()
		destFile.Close()
		return err
	}

	err = destFile.Sync()
	if err != nil {
		srcFile.Close()
		destFile.Close()
		return err
	}

	srcFile.Close()
	destFile.Close()

	var outJSON []byte
	entryPath := path.Join(u.ScratchDir, fmt.Sprintf("%s.report.json", drop.Sha256))
	outJSON, err = json.Marshal(entry)
	if err != nil {
		return err
	}
	err = os.WriteFile(entryPath, outJSON, 0644)
	if err != nil {
		return err
	}

	u.InChan <- UploadJob{
		entry:          entry,
		localFilePath:  destPath,
		localEntryPath: entryPath,
	}
	return nil
}

func (u *Uploader) processUpload() {
	for job := range u.InChan {
		entryFileName := path.Base(job.localEntryPath)
		dropFileName := path.Base(job.localFilePath)

		// upload dropped file
		log.Debugf("bucket %s object '%s' localpath %s", u.Creds.BucketName, dropFileName,
			job.localFilePath)
		size, err := u.Client.FPutObject(u.Creds.BucketName, dropFileName,
			job.localFilePath, minio.PutObjectOptions{
				ContentType: "application/octet-stream",
			})
		if err != nil {
			log.Errorf("upload of %s failed: %s ", dropFileName, err)
			continue
		}
		log.Infof("successfully uploaded %s (size %d)", dropFileName, size)

		// upload report JSON
		log.Infof("bucket %s object '%s' localpath %s", u.Creds.BucketName, entryFileName,
			job.localEntryPath)
		size, err = u.Client.FPutObject(u.Creds.BucketName, entryFileName,
			job.localEntryPath, minio.PutObjectOptions{
				ContentType: "application/json",
			})
		if err != nil {
			log.Errorf("upload of %s failed: %s ", entryFileName, err)
			continue
		}
		log.Infof("successfully uploaded %s (size %d)", entryFileName, size)
		err = os.Remove(job.localFilePath)
		if err != nil {
			log.Errorf("could not remove uploaded file %s: %s", job.localFilePath, err)
		}
		err = os.Remove(job.localEntryPath)
		if err != nil {
			log.Errorf("could not remove uploaded file %s: %s", job.localEntryPath, err)
		}

		// submit JSON with added location of the dropped file
		job.entry.Uploaded = true
		job.entry.UploadLocation = fmt.Sprintf("%s/%s/%s", u.Creds.Endpoint,
			u.Creds.BucketName, dropFileName)
		if u.Submitter != nil {
			var submitJSON []byte
			submitJSON, err = json.Marshal(job.entry)
			if err != nil {
				log.Error(err)
			} else {
				u.Submitter.Submit(submitJSON)
			}
		}
	}
	close(u.ClosedChan)
}

// enqueueBacklog re-enqueues scratch files left over from an interrupted
// earlier run.
func (u *Uploader) enqueueBacklog() error {
	re := regexp.MustCompile(`([0-9a-fA-F]{64})\.report\.json$`)
	files, err := os.ReadDir(u.ScratchDir)
	if err != nil {
		return err
	}

	for _, f := range files {
		m := re.FindStringSubmatch(f.Name())
		if m == nil {
			continue
		}
		var entry resultdb.ReportEntry
		byteValue, err := os.ReadFile(path.Join(u.ScratchDir, f.Name()))
		if err != nil {
			return err
		}
		err = json.Unmarshal(byteValue, &entry)
		if err != nil {
			return err
		}
		log.Debugf("enqueuing scratch file %s", f.Name())
		u.InChan <- UploadJob{
			entry:          entry,
			localFilePath:  path.Join(u.ScratchDir, m[1]),
			localEntryPath: path.Join(u.ScratchDir, f.Name()),
		}
	}

	return nil
}

// MakeS3Uploader returns a new Uploader for the given credentials and
// environment settings. If a submitter is given, it will be used to submit
// the report metadata for each queued file as well.
func MakeS3Uploader(creds S3Credentials, ssl bool, dropdir string, scratchdir string,
	submitter submitter.Submitter) (*Uploader, error) {
	uploader := &Uploader{
		Creds:      creds,
		UseSSL:     ssl,
		DropDir:    dropdir,
		ScratchDir: scratchdir,
		ClosedChan: make(chan bool),
		InChan:     make(chan UploadJob, 10000),
		Submitter:  submitter,
	}

	client, err := minio.New(creds.Endpoint, creds.AccessKey, creds.SecretAccessKey, ssl)
	if err != nil {
		return nil, err
	}
	uploader.Client = client

	err = uploader.enqueueBacklog()
	if err != nil {
		return nil, err
	}

	go uploader.processUpload()

	return uploader, nil
}

// Stop causes the uploader to cease processing enqueued files.
func (u *Uploader) Stop() {
	close(u.InChan)
	<-u.ClosedChan
}
