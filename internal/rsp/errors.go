package rsp

import "errors"

var errShortPacket = errors.New("rsp: packet shorter than expected")
