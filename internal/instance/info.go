package instance

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
)

// Info locates the named instance and renders its details.
func (a *Actor) Info(ctx context.Context, name string) error {
	match, err := a.locate(ctx, name)
	if err != nil {
		return err
	}
	inst := match.Instance

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w)
	row := func(label, value string) {
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(w, "%s:\t%s\n", label, value)
	}

	row("Instance ID", inst.InstanceID)
	row("Name", inst.Name)
	row("State", inst.State)
	row("Account", fmt.Sprintf("%s (%s)", match.Account.Name, match.Account.ID))
	row("Region", match.Region)
	row("Availability zone", inst.AvailabilityZone)
	row("Instance type", inst.InstanceType)
	row("Private IP", inst.PrivateIP)
	row("Public IP", inst.PublicIP)
	row("VPC", inst.VpcID)
	row("Subnet", inst.SubnetID)
	row("Key pair", inst.KeyName)
	row("Launch time", inst.LaunchTime)
	row("Platform", inst.Platform)
	row("Architecture", inst.Architecture)
	row("Monitoring", inst.Monitoring)
	row("Root device", inst.RootDeviceName)
	row("Root device type", inst.RootDeviceType)
	row("Security groups", strings.Join(inst.SecurityGroups, ", "))
	row("Block devices", strings.Join(inst.BlockDevices, ", "))

	if len(inst.Tags) > 0 {
		keys := make([]string, 0, len(inst.Tags))
		for k := range inst.Tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w, "Tags:\t")
		for _, k := range keys {
			fmt.Fprintf(w, "  %s:\t%s\n", k, inst.Tags[k])
		}
	}

	return w.Flush()
}
