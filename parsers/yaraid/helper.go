// Confessor
// Copyright (c) 2016, 2025, DCSO GmbH

package yaraid

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/hillu/go-yara/v4"
	log "github.com/sirupsen/logrus"
	"github.com/xi2/xz"
)

// LoadRules tries to get a compiled yara rule file and
// sets it globally.
func LoadRules(ruleFile string, isXz bool) error {
	var ruleReader io.Reader

	if ruleFile != "" {
		yLogger.Info("Loading rule file ", ruleFile)
		fileReader, err := os.Open(ruleFile)
		if err != nil {
			return err
		}

		if isXz {
			ruleReader, err = xz.NewReader(fileReader, 0)
			if err != nil {
				return err
			}
		} else {
			ruleReader = fileReader
		}

		scanRules, err = yara.ReadRules(ruleReader)
		if err != nil {
			return errors.New("error loading local yara rule file")
		}
		log.Infof("Loaded [%d] rules", len(scanRules.GetRules()))
	} else {
		yLogger.Debug("Retrieving rule file via HTTP from: ", *ruleURI)
		response, err := http.Get(*ruleURI)
		if err != nil {
			return err
		}
		defer response.Body.Close()

		if isXz {
			ruleReader, err = xz.NewReader(response.Body, 0)
			if err != nil {
				return err
			}
		} else {
			data, err := io.ReadAll(response.Body)
			if err != nil {
				return err
			}
			ruleReader = bytes.NewReader(data)
		}

		scanRules, err = yara.ReadRules(ruleReader)
		if err != nil {
			return errors.New("error loading yara rule file from server: " + fmt.Sprintf("%v", err))
		}
		log.Infof("Loaded [%d] rules", len(scanRules.GetRules()))
	}
	return nil
}
