// Package awsops — high-level EC2 operations used by the resolver and the
// lifecycle commands.
package awsops

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// searchableStates are the lifecycle states a locatable instance may be in.
// Terminated instances are deliberately invisible to name searches.
var searchableStates = []string{"pending", "running", "shutting-down", "stopping", "stopped"}

// Instance is the tool's view of one EC2 instance.
type Instance struct {
	InstanceID       string            `json:"instance_id"`
	Name             string            `json:"name"`
	State            string            `json:"state"`
	InstanceType     string            `json:"instance_type"`
	AvailabilityZone string            `json:"availability_zone"`
	PrivateIP        string            `json:"private_ip"`
	PublicIP         string            `json:"public_ip"`
	VpcID            string            `json:"vpc_id"`
	SubnetID         string            `json:"subnet_id"`
	KeyName          string            `json:"key_name"`
	LaunchTime       string            `json:"launch_time"`
	Platform         string            `json:"platform"`
	Architecture     string            `json:"architecture"`
	Monitoring       string            `json:"monitoring"`
	RootDeviceName   string            `json:"root_device_name"`
	RootDeviceType   string            `json:"root_device_type"`
	SecurityGroups   []string          `json:"security_groups"`
	BlockDevices     []string          `json:"block_devices"`
	Tags             map[string]string `json:"tags"`
}

func instanceFromSDK(i ec2types.Instance) Instance {
	inst := Instance{
		InstanceID:     aws.ToString(i.InstanceId),
		InstanceType:   string(i.InstanceType),
		PrivateIP:      aws.ToString(i.PrivateIpAddress),
		PublicIP:       aws.ToString(i.PublicIpAddress),
		VpcID:          aws.ToString(i.VpcId),
		SubnetID:       aws.ToString(i.SubnetId),
		KeyName:        aws.ToString(i.KeyName),
		Platform:       string(i.Platform),
		Architecture:   string(i.Architecture),
		RootDeviceName: aws.ToString(i.RootDeviceName),
		RootDeviceType: string(i.RootDeviceType),
		LaunchTime:     safeTimePtr(i.LaunchTime),
		Tags:           map[string]string{},
	}
	if i.State != nil {
		inst.State = string(i.State.Name)
	}
	if i.Placement != nil {
		inst.AvailabilityZone = aws.ToString(i.Placement.AvailabilityZone)
	}
	if i.Monitoring != nil {
		inst.Monitoring = string(i.Monitoring.State)
	}
	for _, t := range i.Tags {
		inst.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
		if aws.ToString(t.Key) == "Name" {
			inst.Name = aws.ToString(t.Value)
		}
	}
	for _, sg := range i.SecurityGroups {
		inst.SecurityGroups = append(inst.SecurityGroups, aws.ToString(sg.GroupId))
	}
	for _, bd := range i.BlockDeviceMappings {
		if bd.Ebs != nil {
			inst.BlockDevices = append(inst.BlockDevices,
				aws.ToString(bd.DeviceName)+"="+aws.ToString(bd.Ebs.VolumeId))
		}
	}
	return inst
}

// FindInstancesByName returns the instances whose Name tag matches exactly.
// The server applies the state filter, so terminated instances never appear.
// Pagination stops as soon as one page yields matches; the caller only needs
// the first hit.
func (f *ClientFactory) FindInstancesByName(ctx context.Context, client InstanceAPI, name string) ([]Instance, error) {
	f.rateLimiter.Wait("ec2")
	f.logAPICall("ec2", "DescribeInstances", map[string]string{"name": name}, nil)

	input := &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("tag:Name"), Values: []string{name}},
			{Name: aws.String("instance-state-name"), Values: searchableStates},
		},
	}

	var instances []Instance
	paginator := ec2.NewDescribeInstancesPaginator(client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			f.logAPICall("ec2", "DescribeInstances", map[string]string{"name": name}, err)
			return nil, fmt.Errorf("DescribeInstances: %w", err)
		}
		for _, r := range page.Reservations {
			for _, i := range r.Instances {
				instances = append(instances, instanceFromSDK(i))
			}
		}
		if len(instances) > 0 {
			break
		}
		f.rateLimiter.Wait("ec2")
	}
	return instances, nil
}

// EnabledRegions returns the regions enabled for the session's account.
func (f *ClientFactory) EnabledRegions(ctx context.Context, client InstanceAPI) ([]string, error) {
	f.rateLimiter.Wait("ec2")
	f.logAPICall("ec2", "DescribeRegions", nil, nil)

	out, err := client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("opt-in-status"), Values: []string{"opt-in-not-required", "opted-in"}},
		},
	})
	if err != nil {
		f.logAPICall("ec2", "DescribeRegions", nil, err)
		return nil, fmt.Errorf("DescribeRegions: %w", err)
	}

	var regions []string
	for _, r := range out.Regions {
		regions = append(regions, aws.ToString(r.RegionName))
	}
	return regions, nil
}

// StartInstance issues ec2:StartInstances for one instance.
func (f *ClientFactory) StartInstance(ctx context.Context, client InstanceAPI, instanceID string) error {
	f.rateLimiter.Wait("ec2")
	f.logAPICall("ec2", "StartInstances", map[string]string{"instance_id": instanceID}, nil)

	_, err := client.StartInstances(ctx, &ec2.StartInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		f.logAPICall("ec2", "StartInstances", map[string]string{"instance_id": instanceID}, err)
		return fmt.Errorf("StartInstances(%s): %w", instanceID, err)
	}
	return nil
}

// StopInstance issues ec2:StopInstances for one instance.
func (f *ClientFactory) StopInstance(ctx context.Context, client InstanceAPI, instanceID string) error {
	f.rateLimiter.Wait("ec2")
	f.logAPICall("ec2", "StopInstances", map[string]string{"instance_id": instanceID}, nil)

	_, err := client.StopInstances(ctx, &ec2.StopInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		f.logAPICall("ec2", "StopInstances", map[string]string{"instance_id": instanceID}, err)
		return fmt.Errorf("StopInstances(%s): %w", instanceID, err)
	}
	return nil
}

// WaitUntilRunning blocks until the instance reaches the running state,
// polling every 15 seconds for up to maxWait.
func (f *ClientFactory) WaitUntilRunning(ctx context.Context, client InstanceAPI, instanceID string, maxWait time.Duration) error {
	waiter := ec2.NewInstanceRunningWaiter(client, func(o *ec2.InstanceRunningWaiterOptions) {
		o.MinDelay = 15 * time.Second
		o.MaxDelay = 15 * time.Second
	})
	err := waiter.Wait(ctx, describeByID(instanceID), maxWait)
	if err != nil {
		return fmt.Errorf("waiting for %s to run: %w", instanceID, err)
	}
	return nil
}

// WaitUntilStopped blocks until the instance reaches the stopped state,
// polling every 15 seconds for up to maxWait.
func (f *ClientFactory) WaitUntilStopped(ctx context.Context, client InstanceAPI, instanceID string, maxWait time.Duration) error {
	waiter := ec2.NewInstanceStoppedWaiter(client, func(o *ec2.InstanceStoppedWaiterOptions) {
		o.MinDelay = 15 * time.Second
		o.MaxDelay = 15 * time.Second
	})
	err := waiter.Wait(ctx, describeByID(instanceID), maxWait)
	if err != nil {
		return fmt.Errorf("waiting for %s to stop: %w", instanceID, err)
	}
	return nil
}

func describeByID(instanceID string) *ec2.DescribeInstancesInput {
	return &ec2.DescribeInstancesInput{InstanceIds: []string{instanceID}}
}

func safeTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
