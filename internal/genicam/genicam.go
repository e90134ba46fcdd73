// Copyright 2024 The go-gev Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package genicam embeds the device description served from the XML
// region of the register space.
package genicam

import _ "embed"

//go:embed camera.xml
var blob []byte

// XML returns the embedded device description.
func XML() []byte { return blob }
