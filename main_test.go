package main

import (
	"reflect"
	"testing"

	"github.com/stepauction/kickbot/service/store"
	"github.com/stretchr/testify/assert"
)

func TestDeploymentsListFields(t *testing.T) {
	typ := reflect.TypeOf(store.DeploymentRecord{})
	for _, field := range deploymentsListFields {
		_, found := typ.FieldByName(field)
		assert.True(t, found, "store.DeploymentRecord no longer has field %s", field)
	}
}

func TestKicksListFields(t *testing.T) {
	typ := reflect.TypeOf(store.KickRecord{})
	for _, field := range kicksListFields {
		_, found := typ.FieldByName(field)
		assert.True(t, found, "store.KickRecord no longer has field %s", field)
	}
}
