// Confessor
// Copyright (c) 2016, 2025, DCSO GmbH

// Package util contains test support helpers shared between packages.
package util

import (
	"encoding/base64"
	"os"

	"github.com/hillu/go-yara/v4"
)

// xzPayload is an xz-compressed implant configuration used to build
// dropper-style test samples:
//
//	c2=10.11.12.13
//	c2_url=http://bad.example.com:8080/gate.php
//	mutex=Global\mw-implant-7f
//	version=2.4
//	key=4145532d3235362d434243
const xzPayload = "/Td6WFoAAATm1rRGAgAhARYAAAB0L+Wj4AB8AHhdADGMg6My0yswYI6yCg32ZCpaWOohk/99RWUzJdi7/CZ5IIc3+zBkeqnLXgPjtMfdteeXpSkECOJoUhqzo/09TZFEDeX/gNe2rig/gujKckrxhnOg51ook7NrIbjON06XsBkDNjV0DHWiY6DTxh172YFqOgA/oKljOgABl9yRIRQTKgABlAF9AAAAedGX4bHEZ/sCAAAAAARZWg=="

// XZPayload returns the raw xz stream of the embedded test configuration.
func XZPayload() []byte {
	data, err := base64.StdEncoding.DecodeString(xzPayload)
	if err != nil {
		panic(err)
	}
	return data
}

// MakeDropperSample builds a dropper-style sample: the given prefix bytes
// followed by an embedded xz stream carrying an implant configuration.
func MakeDropperSample(prefix []byte) []byte {
	return append(append([]byte(nil), prefix...), XZPayload()...)
}

// MakeYARARuleFile compiles the YARA rule source at rulePath and writes the
// compiled version to a given file name.
func MakeYARARuleFile(rulePath, outfile string) error {
	compiler, err := yara.NewCompiler()
	if err != nil {
		return err
	}
	defer compiler.Destroy()
	ruleFile, err := os.Open(rulePath)
	if err != nil {
		return err
	}
	defer ruleFile.Close()
	err = compiler.AddFile(ruleFile, "test")
	if err != nil {
		return err
	}
	rules, err := compiler.GetRules()
	if err != nil {
		return err
	}
	defer rules.Destroy()
	err = rules.Save(outfile)
	return err
}
