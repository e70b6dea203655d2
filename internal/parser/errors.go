package parser

import "errors"

var errNoText = errors.New("no readable text content")
