package bluetooth

// characteristicFlags returns the Flags property of a characteristic as
// understood by bluetoothd. Capabilities using IO mode without a control are
// left out.
func characteristicFlags(c *Characteristic) []string {
	var flags []string
	add := func(set bool, flag string) {
		if set {
			flags = append(flags, flag)
		}
	}
	add(c.Broadcast, "broadcast")
	if r := c.Read; r != nil {
		add(r.Read, "read")
		add(r.EncryptRead, "encrypt-read")
		add(r.EncryptAuthenticatedRead, "encrypt-authenticated-read")
		add(r.SecureRead, "secure-read")
	}
	if w := c.Write; w != nil && (c.ioWrite() || !isWriteIO(w.Method)) {
		add(w.Write, "write")
		add(w.WriteWithoutResponse, "write-without-response")
		add(w.ReliableWrite, "reliable-write")
		add(w.AuthenticatedSignedWrites, "authenticated-signed-writes")
		add(w.EncryptWrite, "encrypt-write")
		add(w.EncryptAuthenticatedWrite, "encrypt-authenticated-write")
		add(w.SecureWrite, "secure-write")
	}
	if n := c.Notify; n != nil && (c.ioNotify() || !isNotifyIO(n.Method)) {
		add(n.Notify, "notify")
		add(n.Indicate, "indicate")
	}
	add(c.WritableAuxiliaries, "writable-auxiliaries")
	add(c.Authorize, "authorize")
	if flags == nil {
		flags = []string{}
	}
	return flags
}

// descriptorFlags returns the Flags property of a descriptor.
func descriptorFlags(d *Descriptor) []string {
	flags := []string{}
	add := func(set bool, flag string) {
		if set {
			flags = append(flags, flag)
		}
	}
	if r := d.Read; r != nil {
		add(r.Read, "read")
		add(r.EncryptRead, "encrypt-read")
		add(r.EncryptAuthenticatedRead, "encrypt-authenticated-read")
		add(r.SecureRead, "secure-read")
	}
	if w := d.Write; w != nil {
		add(w.Write, "write")
		add(w.EncryptWrite, "encrypt-write")
		add(w.EncryptAuthenticatedWrite, "encrypt-authenticated-write")
		add(w.SecureWrite, "secure-write")
	}
	add(d.Authorize, "authorize")
	return flags
}

func isWriteIO(m WriteMethod) bool {
	switch m.(type) {
	case WriteIO, *WriteIO:
		return true
	}
	return false
}

func isNotifyIO(m NotifyMethod) bool {
	switch m.(type) {
	case NotifyIO, *NotifyIO:
		return true
	}
	return false
}
